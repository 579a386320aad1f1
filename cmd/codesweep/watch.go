package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/watch"
)

func (c *cli) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Analyze once, then re-analyze on every file change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			s.serveMetrics(ctx)

			report, err := s.engine.Analyze(ctx, s.root, nil)
			if err != nil {
				return err
			}
			printSummary(out, report, s.root)

			w, err := watch.New(s.root, func(ctx context.Context, paths []string) {
				report, err := s.engine.Analyze(ctx, s.root, paths)
				if err != nil {
					s.logger.Warn("analysis failed", zap.Error(err))
					return
				}
				printSummary(out, report, s.root)
			}, watch.Options{
				Classifier: s.engine.Classifier(),
				Debounce:   debounce,
				Logger:     s.logger,
			})
			if err != nil {
				return err
			}
			s.logger.Info("watching", zap.String("root", s.root))
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a batch of changes is analyzed")
	return cmd
}
