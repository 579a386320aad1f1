package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/codesweep/internal/export"
)

func (c *cli) graphCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the import graph as a Mermaid diagram",
		Long:  "Runs an analysis to bring the graph up to date, then renders it grouped by directory with high-impact files highlighted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if _, err := s.engine.Analyze(ctx, s.root, nil); err != nil {
				return err
			}
			mermaid, err := export.GenerateMermaid(ctx, s.engine.Store(), s.root)
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), mermaid)
				return nil
			}
			if err := os.WriteFile(output, []byte(mermaid), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  created %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the diagram to this file instead of stdout")
	return cmd
}
