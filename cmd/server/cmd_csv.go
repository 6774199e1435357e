package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"airr.io/student-analytics/internal/core"
)

// newCSVCmd parses a student CSV file offline with the same rules the
// upload endpoint applies.
func newCSVCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "csv [file]",
		Short: "Parse a student CSV file and print the resulting records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := core.ImportCSVFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ds)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(ds); err != nil {
					return err
				}
				return enc.Close()
			case "summary":
				s := core.Summarize(ds)
				_, err := fmt.Fprintf(out, "records: %d\nmean GPA: %.2f\ntotal credits: %d\n", s.Records, s.MeanGPA, s.TotalCredits)
				return err
			default:
				return fmt.Errorf("unknown output format %q (want json, yaml or summary)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format: json, yaml or summary")
	return cmd
}
