package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lensiq/esg-pipeline/internal/ratelimit"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show configured sources and their reliability scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		reliability, err := st.GetReliability(ctx)
		if err != nil {
			return err
		}

		limits := cfg.RateLimits()
		names := make([]string, 0, len(cfg.Sources))
		for name := range cfg.Sources {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			src := cfg.Sources[name]
			perMin := limits[name]
			if perMin == 0 {
				perMin = ratelimit.DefaultPerMinute
			}
			score, tracked := reliability[name]
			reliabilityCol := "n/a"
			if tracked {
				reliabilityCol = fmt.Sprintf("%.3f", score)
			}
			fmt.Printf("%-16s  enabled=%-5v  rate=%d/min  reliability=%s\n",
				name, src.Enabled, perMin, reliabilityCol)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
