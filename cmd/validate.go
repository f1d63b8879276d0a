package main

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lensiq/esg-pipeline/internal/model"
)

var validateSource string

var validateCmd = &cobra.Command{
	Use:   "validate <records.jsonl>",
	Short: "Score a JSONL file of records against the quality dimensions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecords(args[0])
		if err != nil {
			return err
		}

		validator := initValidator()
		report := validator.Validate(records, validateSource)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "encode report")
		}

		if !validator.Acceptable(report) {
			return eris.Errorf("batch quality below thresholds (overall %.3f)", report.OverallScore)
		}
		return nil
	},
}

func readRecords(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open records file")
	}
	defer f.Close() //nolint:errcheck

	var out []model.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, eris.Wrap(err, "decode record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(scanner.Err(), "scan records file")
}

func init() {
	validateCmd.Flags().StringVar(&validateSource, "source", "file", "source name for the quality report")
	rootCmd.AddCommand(validateCmd)
}
