package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/codesweep/internal/export"
)

func (c *cli) analyzeCmd() *cobra.Command {
	var (
		asJSON bool
		files  []string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze files changed since the last run",
		Long: "Detects changed files by content hash, analyzes them in parallel and reports the files each change impacts. " +
			"Without --persist, state lives only for this process, so every file is new.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			s.serveMetrics(cmd.Context())

			var changed []string
			if len(files) > 0 {
				changed = files
			}
			report, err := s.engine.Analyze(cmd.Context(), s.root, changed)
			if err != nil {
				return err
			}

			if asJSON {
				if err := export.WriteReportJSON(cmd.OutOrStdout(), report, s.root); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), report, s.root)
			}
			if !report.Success {
				return fmt.Errorf("%d of %d tasks failed", report.Failed, report.Total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "write the report as JSON")
	cmd.Flags().StringSliceVar(&files, "files", nil, "only consider these paths (relative to the project root)")
	return cmd
}
