package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cyclesLimit int

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List recent cycle reports",
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

		cycles, err := st.ListCycles(ctx, cyclesLimit)
		if err != nil {
			return err
		}

		for _, c := range cycles {
			fmt.Printf("%s  %-16s  records=%-6d degraded=%-5v  %s\n",
				c.StartedAt.Format("2006-01-02 15:04:05"),
				c.State, c.TotalRecords, c.Degraded, c.ID)
		}
		return nil
	},
}

var cycleShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Print one cycle report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.GetCycle(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	cyclesCmd.Flags().IntVar(&cyclesLimit, "limit", 20, "maximum cycles to list")
	cyclesCmd.AddCommand(cycleShowCmd)
	rootCmd.AddCommand(cyclesCmd)
}
