// Package engine is the facade of the incremental analysis pipeline. An
// Engine owns the change detector, dependency graph, scheduler and worker
// pool of one process; callers own its lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/change"
	"github.com/dusk-indust/codesweep/internal/config"
	"github.com/dusk-indust/codesweep/internal/graph"
	"github.com/dusk-indust/codesweep/internal/history"
	"github.com/dusk-indust/codesweep/internal/orchestrator"
	"github.com/dusk-indust/codesweep/internal/source"
	"github.com/dusk-indust/codesweep/internal/telemetry"
)

var (
	// ErrEngineClosed is returned by every operation after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid engine state")
)

// State is the lifecycle state of an Engine.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Pool runs analysis tasks. *orchestrator.Executor implements it.
type Pool interface {
	Start() error
	Stop()
	Execute(ctx context.Context, tasks []orchestrator.AnalysisTask) (map[string]orchestrator.TaskResult, error)
}

// PoolFactory creates the worker pool when the engine starts.
type PoolFactory func(opts orchestrator.ExecutorOptions) (Pool, error)

// DefaultPoolFactory builds an orchestrator.Executor.
func DefaultPoolFactory(opts orchestrator.ExecutorOptions) (Pool, error) {
	return orchestrator.NewExecutor(opts), nil
}

// StateStore persists hashes and timings between runs.
// *storage.BadgerStore implements it.
type StateStore interface {
	history.KV
	LoadHashes() (map[string]string, error)
	SaveHashes(hashes map[string]string) error
}

// Options configures an Engine. Only Config is required.
type Options struct {
	Config   *config.Config
	FS       source.FileSystem
	Analyzer orchestrator.Analyzer
	// Parser extracts imports. Default TreeSitterParser. The engine closes it.
	Parser graph.Parser
	// Store mirrors the graph after every run. Default MemStore. The engine
	// closes it.
	Store graph.Store
	// State, when set, seeds the hash table and backs the timing history.
	// The caller closes it.
	State StateStore
	// Timings overrides the timing history.
	Timings     history.TimingStore
	PoolFactory PoolFactory
	Metrics     *telemetry.Metrics
	Progress    func(orchestrator.ProgressEvent)
	Logger      *zap.Logger
	Now         func() time.Time
}

// Stats are cumulative cache-effectiveness figures across runs.
type Stats struct {
	State        string
	Runs         int
	Fallbacks    int
	CacheHits    int
	CacheMisses  int
	HitRate      float64
	TimeSaved    time.Duration
	TrackedFiles int
	GraphNodes   int
}

// Engine runs incremental analyses. It is safe for concurrent use; Analyze
// calls are serialized.
type Engine struct {
	cfg        *config.Config
	fsys       source.FileSystem
	analyzer   orchestrator.Analyzer
	classifier *source.Classifier
	detector   *change.Detector
	graph      *graph.DependencyGraph
	parser     graph.Parser
	scheduler  *orchestrator.Scheduler
	store      graph.Store
	state      StateStore
	timings    history.TimingStore
	changes    *history.RingBuffer[change.FileChangeRecord]
	metrics    *telemetry.Metrics
	newPool    PoolFactory
	progress   func(orchestrator.ProgressEvent)
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex // guards lifecycle and pool
	lifecycle State
	pool      Pool

	runMu      sync.Mutex // serializes runs
	extractors map[string]*graph.Extractor
	warm       bool

	orphanMu sync.Mutex
	// orphans maps a removed path to the files that imported it when it
	// was removed.
	orphans map[string]map[string]struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates a stopped Engine.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = source.OSFileSystem{}
	}
	if opts.Analyzer == nil {
		opts.Analyzer = orchestrator.NopAnalyzer
	}
	if opts.Parser == nil {
		opts.Parser = graph.NewTreeSitterParser()
	}
	if opts.Store == nil {
		opts.Store = graph.NewMemStore()
	}
	if opts.PoolFactory == nil {
		opts.PoolFactory = DefaultPoolFactory
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.Named("engine")

	excluded := cfg.ExcludeDirs
	if cfg.StateDir != "" {
		excluded = append(slices.Clone(excluded), filepath.Base(cfg.StateDir))
	}
	classifier := source.NewClassifier(cfg.SourceExtensions, cfg.ConfigExtensions, cfg.ExtraExtensions, excluded)
	detector, err := change.NewDetector(opts.FS, classifier, change.Options{
		MaxTrackedFiles: cfg.MaxTrackedFiles,
		HashCacheSize:   cfg.HashCacheSize,
		Workers:         cfg.WorkerCount(),
		Logger:          opts.Logger,
		Now:             opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	timings := opts.Timings
	switch {
	case timings != nil:
	case opts.State != nil:
		timings, err = history.NewKVTimingStore(opts.State, cfg.TimingHistorySize, opts.Logger)
	default:
		timings, err = history.NewLRUTimingStore(cfg.TimingHistorySize)
	}
	if err != nil {
		return nil, fmt.Errorf("engine: timing history: %w", err)
	}

	if opts.State != nil {
		hashes, err := opts.State.LoadHashes()
		if err != nil {
			return nil, fmt.Errorf("engine: load hashes: %w", err)
		}
		detector.Restore(hashes)
		logger.Info("state restored", zap.Int("hashes", len(hashes)))
	}

	if err := opts.Store.InitSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("engine: init graph store: %w", err)
	}

	g := graph.NewDependencyGraph()
	scheduler := orchestrator.NewScheduler(orchestrator.SchedulerOptions{
		Classifier: classifier,
		Timings:    timings,
		Estimator:  cfg.Estimator,
		MaxRetries: cfg.MaxRetries,
		Graph:      g,
		Logger:     opts.Logger,
	})
	return &Engine{
		cfg:        cfg,
		fsys:       opts.FS,
		analyzer:   opts.Analyzer,
		classifier: classifier,
		detector:   detector,
		graph:      g,
		parser:     opts.Parser,
		scheduler:  scheduler,
		store:      opts.Store,
		state:      opts.State,
		timings:    timings,
		changes:    history.NewRingBuffer[change.FileChangeRecord](cfg.ChangeHistorySize),
		metrics:    opts.Metrics,
		newPool:    opts.PoolFactory,
		progress:   opts.Progress,
		logger:     logger,
		now:        opts.Now,
		extractors: make(map[string]*graph.Extractor),
		orphans:    make(map[string]map[string]struct{}),
	}, nil
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle
}

// Start creates and starts the worker pool. Starting a running engine is a
// no-op. If the pool cannot start, the engine stays stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	switch e.lifecycle {
	case StateRunning:
		e.mu.Unlock()
		return nil
	case StateClosed:
		e.mu.Unlock()
		return ErrEngineClosed
	case StateStopped:
	default:
		s := e.lifecycle
		e.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidState, s)
	}
	e.lifecycle = StateStarting
	e.mu.Unlock()

	pool, err := e.newPool(orchestrator.ExecutorOptions{
		Workers:        e.cfg.WorkerCount(),
		TaskTimeout:    e.cfg.TaskTimeout,
		BatchTimeout:   e.cfg.BatchTimeout,
		RetryBaseDelay: e.cfg.RetryBaseDelay,
		FS:             e.fsys,
		Analyzer:       e.analyzer,
		Cleanup:        e.cleanup,
		Timings:        e.timings,
		Observer:       e.metrics,
		Progress:       e.progress,
		Logger:         e.logger,
	})
	if err == nil {
		err = pool.Start()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lifecycle = StateStopped
		return fmt.Errorf("engine: start pool: %w", err)
	}
	e.pool = pool
	e.lifecycle = StateRunning
	e.logger.Info("engine started", zap.Int("workers", e.cfg.WorkerCount()))
	return nil
}

// Stop waits for an in-flight run, then drains and joins the pool.
func (e *Engine) Stop() error {
	e.mu.Lock()
	switch e.lifecycle {
	case StateStopped:
		e.mu.Unlock()
		return nil
	case StateClosed:
		e.mu.Unlock()
		return ErrEngineClosed
	case StateRunning:
	default:
		s := e.lifecycle
		e.mu.Unlock()
		return fmt.Errorf("%w: stop while %s", ErrInvalidState, s)
	}
	e.lifecycle = StateStopping
	pool := e.pool
	e.mu.Unlock()

	e.runMu.Lock()
	pool.Stop()
	e.runMu.Unlock()

	e.mu.Lock()
	e.pool = nil
	e.lifecycle = StateStopped
	e.mu.Unlock()
	e.logger.Info("engine stopped")
	return nil
}

// Close stops the engine, persists state and releases the graph store and
// parser. Every later call returns ErrEngineClosed. Close is idempotent.
func (e *Engine) Close() error {
	if e.State() == StateClosed {
		return nil
	}
	if err := e.Stop(); err != nil && !errors.Is(err, ErrEngineClosed) {
		return err
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.mu.Lock()
	e.lifecycle = StateClosed
	e.mu.Unlock()

	var errs []error
	if err := e.persist(); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: close graph store: %w", err))
	}
	if err := e.parser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: close parser: %w", err))
	}
	e.logger.Info("engine closed")
	return errors.Join(errs...)
}

// ensureRunning starts a stopped engine.
func (e *Engine) ensureRunning() error {
	switch s := e.State(); s {
	case StateRunning:
		return nil
	case StateClosed:
		return ErrEngineClosed
	case StateStopped:
		return e.Start()
	default:
		return fmt.Errorf("%w: analyze while %s", ErrInvalidState, s)
	}
}

// cleanup drops a deleted file from the graph and remembers its importers,
// so their edges can be rebuilt if the file comes back.
func (e *Engine) cleanup(_ context.Context, path string) error {
	importers := e.graph.Dependents(path)
	e.graph.RemoveNode(path)
	if len(importers) == 0 {
		return nil
	}
	e.orphanMu.Lock()
	set, ok := e.orphans[path]
	if !ok {
		set = make(map[string]struct{}, len(importers))
		e.orphans[path] = set
	}
	for _, imp := range importers {
		set[imp] = struct{}{}
	}
	e.orphanMu.Unlock()
	return nil
}

// adoptOrphans returns the former importers of path that are still in the
// graph and forgets them.
func (e *Engine) adoptOrphans(path string) []string {
	e.orphanMu.Lock()
	set := e.orphans[path]
	delete(e.orphans, path)
	e.orphanMu.Unlock()

	var out []string
	for imp := range set {
		if _, ok := e.graph.Node(imp); ok {
			out = append(out, imp)
		}
	}
	return out
}

// persist writes the hash table to the state store, if any.
func (e *Engine) persist() error {
	if e.state == nil {
		return nil
	}
	if err := e.state.SaveHashes(e.detector.Hashes()); err != nil {
		return fmt.Errorf("engine: save hashes: %w", err)
	}
	return nil
}

// Stats returns cumulative statistics.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	s := e.stats
	e.statsMu.Unlock()

	s.State = e.State().String()
	s.TrackedFiles = e.detector.Len()
	s.GraphNodes = e.graph.Len()
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.HitRate = float64(s.CacheHits) / float64(total)
	}
	return s
}

// History returns the retained change records, oldest first.
func (e *Engine) History() []change.FileChangeRecord {
	return e.changes.Slice()
}

// RecentChanges returns up to n of the newest change records, oldest first.
func (e *Engine) RecentChanges(n int) []change.FileChangeRecord {
	return e.changes.Last(n)
}

// Graph exposes the live dependency graph.
func (e *Engine) Graph() *graph.DependencyGraph {
	return e.graph
}

// Store exposes the graph mirror.
func (e *Engine) Store() graph.Store {
	return e.store
}

// Metrics exposes the engine's collectors.
func (e *Engine) Metrics() *telemetry.Metrics {
	return e.metrics
}

// Classifier returns the classifier deciding which files are tracked.
func (e *Engine) Classifier() *source.Classifier {
	return e.classifier
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}
