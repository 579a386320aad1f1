package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/mcptools"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Expose the engine as MCP tools over streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			s.serveMetrics(cmd.Context())

			svc, err := mcptools.NewAnalysisService(s.engine, s.root)
			if err != nil {
				return err
			}
			s.logger.Info("serving MCP", zap.String("addr", addr), zap.String("root", s.root))
			return mcptools.RunMCPServer(cmd.Context(), svc, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultMCPAddr, "listen address")
	return cmd
}
