package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cycleCompanies     []string
	cycleSkipReconcile bool
	cycleSkipQuality   bool
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one full ingestion cycle",
	Long:  "Ingests from all enabled sources, reconciles conflicts, deduplicates, scores quality, and assembles train/validation/test datasets. The cycle report is printed as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if len(cycleCompanies) > 0 {
			cfg.Pipeline.CompanyIDs = cycleCompanies
		}
		if cycleSkipReconcile {
			cfg.Pipeline.SkipReconciliation = true
		}
		if cycleSkipQuality {
			cfg.Pipeline.SkipQualityControl = true
		}

		p, err := initPipeline(st)
		if err != nil {
			return err
		}

		report, runErr := p.RunCycle(ctx)
		if runErr != nil {
			zap.L().Error("cycle failed",
				zap.String("cycle_id", report.ID),
				zap.String("failed_stage", report.FailedStage),
				zap.Error(runErr),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "encode report")
		}
		return runErr
	},
}

func init() {
	cycleCmd.Flags().StringSliceVar(&cycleCompanies, "companies", nil, "company IDs to ingest (overrides config)")
	cycleCmd.Flags().BoolVar(&cycleSkipReconcile, "skip-reconcile", false, "pass merged raw records straight to deduplication")
	cycleCmd.Flags().BoolVar(&cycleSkipQuality, "skip-quality", false, "omit the batch quality report")
	rootCmd.AddCommand(cycleCmd)
}
