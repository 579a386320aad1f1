package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/config"
	"github.com/dusk-indust/codesweep/internal/engine"
	"github.com/dusk-indust/codesweep/internal/graph"
	"github.com/dusk-indust/codesweep/internal/lint"
	"github.com/dusk-indust/codesweep/internal/orchestrator"
	"github.com/dusk-indust/codesweep/internal/storage"
	"github.com/dusk-indust/codesweep/internal/telemetry"
)

// session is one configured engine plus the resources it was built from.
type session struct {
	root     string
	cfg      *config.Config
	engine   *engine.Engine
	logger   *zap.Logger
	state    *storage.BadgerStore
	progress *orchestrator.ProgressReporter
	printed  chan struct{}

	metricsAddr string
	events      *telemetry.EventHub
}

// openSession loads the configuration and builds the engine. With persist
// set, hashes and timings live in a Badger store and the graph mirror in a
// Kuzu database under the state directory.
func (c *cli) openSession(cmd *cobra.Command) (*session, error) {
	root, err := c.projectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := c.loadConfig(root)
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{root: root, cfg: cfg, logger: logger, metricsAddr: c.v.GetString("metrics-addr")}
	opts := engine.Options{
		Config:   cfg,
		Analyzer: lint.Rules{MaxLineLength: c.v.GetInt("max-line-length")},
		Metrics:  telemetry.NewMetrics(),
		Logger:   logger,
	}

	if cfg.Persist {
		s.state, err = storage.Open(filepath.Join(cfg.StateDir, "state"))
		if err != nil {
			return nil, err
		}
		opts.State = s.state
		store, err := graph.NewKuzuFileStore(filepath.Join(cfg.StateDir, "graph"))
		if err != nil {
			_ = s.state.Close()
			return nil, err
		}
		opts.Store = store
	}

	var sinks []func(orchestrator.ProgressEvent)
	if c.v.GetBool("verbose") {
		s.progress = orchestrator.NewProgressReporter()
		s.printed = make(chan struct{})
		sinks = append(sinks, s.progress.Emit)
		go printProgress(cmd.ErrOrStderr(), s.progress, s.printed)
	}
	if s.metricsAddr != "" {
		s.events = telemetry.NewEventHub()
		sinks = append(sinks, s.events.Publish)
	}
	if len(sinks) > 0 {
		opts.Progress = func(ev orchestrator.ProgressEvent) {
			for _, sink := range sinks {
				sink(ev)
			}
		}
	}

	s.engine, err = engine.New(opts)
	if err != nil {
		s.closeAux()
		if opts.Store != nil {
			_ = opts.Store.Close()
		}
		return nil, err
	}
	return s, nil
}

// Close shuts the engine down, then the stores it does not own.
func (s *session) Close() error {
	err := s.engine.Close()
	s.closeAux()
	if err != nil {
		s.logger.Warn("engine close", zap.Error(err))
	}
	_ = s.logger.Sync()
	return err
}

func (s *session) closeAux() {
	if s.events != nil {
		s.events.Close()
	}
	if s.progress != nil {
		s.progress.Close()
		<-s.printed
	}
	if s.state != nil {
		if err := s.state.Close(); err != nil {
			s.logger.Warn("state store close", zap.Error(err))
		}
	}
}

func printProgress(w io.Writer, pr *orchestrator.ProgressReporter, done chan<- struct{}) {
	defer close(done)
	for ev := range pr.Subscribe() {
		fmt.Fprintln(w, orchestrator.FormatProgress(ev))
	}
}

// serveMetrics exposes the engine's collectors at /metrics and its task
// progress as Server-Sent Events at /events until ctx is done. It does
// nothing without --metrics-addr.
func (s *session) serveMetrics(ctx context.Context) {
	if s.metricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.engine.Metrics().Handler())
	mux.Handle("/events", s.events)
	srv := &http.Server{Addr: s.metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		s.events.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		s.logger.Info("serving metrics", zap.String("addr", s.metricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server", zap.Error(err))
		}
	}()
}
