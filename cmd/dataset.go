package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lensiq/esg-pipeline/internal/dataset"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect and maintain stored datasets",
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAssembler(cmd.Context(), func(ctx context.Context, a *dataset.Assembler) error {
			infos, err := a.List(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%-40s  records=%-8d  %s\n",
					info.Name, info.Records, info.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

var datasetStatsCmd = &cobra.Command{
	Use:   "stats <name>",
	Short: "Print summary statistics for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAssembler(cmd.Context(), func(ctx context.Context, a *dataset.Assembler) error {
			records, err := a.Read(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(dataset.Compute(records))
		})
	},
}

var datasetCleanupDays int

var datasetCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove datasets older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAssembler(cmd.Context(), func(ctx context.Context, a *dataset.Assembler) error {
			days := datasetCleanupDays
			if days <= 0 {
				days = cfg.Dataset.RetentionDays
			}
			removed, err := a.Cleanup(ctx, time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			fmt.Printf("removed %d dataset(s) older than %d days\n", removed, days)
			return nil
		})
	},
}

func withAssembler(ctx context.Context, fn func(context.Context, *dataset.Assembler) error) error {
	a, err := initAssembler()
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

func init() {
	datasetCleanupCmd.Flags().IntVar(&datasetCleanupDays, "days", 0, "retention in days (defaults to config)")
	datasetCmd.AddCommand(datasetListCmd, datasetStatsCmd, datasetCleanupCmd)
	rootCmd.AddCommand(datasetCmd)
}
