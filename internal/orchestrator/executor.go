package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/codesweep/internal/history"
	"github.com/dusk-indust/codesweep/internal/source"
)

var tracer = otel.Tracer("codesweep/orchestrator")

// CleanupFunc releases whatever state is held for a deleted path.
type CleanupFunc func(ctx context.Context, path string) error

// ExecutorOptions configures an Executor. Zero durations fall back to the
// defaults noted on each field.
type ExecutorOptions struct {
	Workers int // default 4
	// TaskTimeout bounds one attempt. Default 30s.
	TaskTimeout time.Duration
	// BatchTimeout bounds one Execute call. Default 5m.
	BatchTimeout time.Duration
	// RetryBaseDelay is the backoff unit: retry n waits RetryBaseDelay*2^(n-1).
	// Default 1s.
	RetryBaseDelay time.Duration

	FS       source.FileSystem
	Analyzer Analyzer
	Cleanup  CleanupFunc
	// Timings receives the duration of every successful attempt.
	Timings  history.TimingStore
	Observer Observer
	// Progress is called synchronously from workers; it may be nil.
	Progress func(ProgressEvent)
	Logger   *zap.Logger
}

// Executor runs analysis tasks on a fixed pool of workers with per-task
// timeouts, a batch deadline and timer-driven retries.
type Executor struct {
	opts   ExecutorOptions
	logger *zap.Logger

	queue chan *job

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	workers *errgroup.Group
}

// job is one task travelling through the queue, including its retries.
type job struct {
	b        *batch
	task     AnalysisTask
	attempts int
}

// batch collects the results of one Execute call.
type batch struct {
	ctx     context.Context
	mu      sync.Mutex
	results map[string]TaskResult
	pending int
	closed  bool
	timers  []*time.Timer
	done    chan struct{}
}

// NewExecutor creates an Executor. Call Start before Execute.
func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 5 * time.Minute
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.FS == nil {
		opts.FS = source.OSFileSystem{}
	}
	if opts.Analyzer == nil {
		opts.Analyzer = NopAnalyzer
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Executor{
		opts:   opts,
		logger: opts.Logger.Named("executor"),
		queue:  make(chan *job, opts.Workers*4),
	}
}

// Workers returns the pool size.
func (e *Executor) Workers() int {
	return e.opts.Workers
}

// Start launches the worker pool.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("executor: already running")
	}
	quit := make(chan struct{})
	e.quit = quit
	e.workers = &errgroup.Group{}
	for range e.opts.Workers {
		e.workers.Go(func() error {
			e.work(quit)
			return nil
		})
	}
	e.running = true
	e.logger.Debug("worker pool started", zap.Int("workers", e.opts.Workers))
	return nil
}

// Stop signals the workers to exit and waits for them. Attempts already
// running finish first. Stop on a stopped executor is a no-op.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.quit)
	workers := e.workers
	e.mu.Unlock()

	_ = workers.Wait()
	e.logger.Debug("worker pool stopped")
}

// Running reports whether the pool is accepting work.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Execute submits tasks in the given order and blocks until every task has
// a final result or the batch deadline passes. Results are keyed by task ID.
// On deadline, tasks still pending are recorded as failed with
// ErrBatchTimeout and results already collected are kept.
func (e *Executor) Execute(ctx context.Context, tasks []AnalysisTask) (map[string]TaskResult, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, ErrNotRunning
	}
	quit := e.quit
	e.mu.Unlock()

	ctx, span := tracer.Start(ctx, "orchestrator.Execute")
	defer span.End()
	span.SetAttributes(attribute.Int("tasks", len(tasks)), attribute.Int("workers", e.opts.Workers))

	bctx, cancel := context.WithTimeout(ctx, e.opts.BatchTimeout)
	defer cancel()

	b := &batch{
		ctx:     bctx,
		results: make(map[string]TaskResult, len(tasks)),
		pending: len(tasks),
		done:    make(chan struct{}),
	}
	if len(tasks) == 0 {
		return b.results, nil
	}

	for _, t := range tasks {
		e.emit(ProgressEvent{TaskID: t.ID, Path: t.Path, Type: t.Type, Status: ProgressPending})
	}
	go func() {
		for _, t := range tasks {
			if !e.enqueue(quit, &job{b: b, task: t}) {
				return
			}
		}
	}()

	select {
	case <-b.done:
	case <-bctx.Done():
	case <-quit:
	}

	results := b.close(tasks, e.batchErr(ctx, bctx, quit))
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d tasks failed", failed))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return results, nil
}

// batchErr picks the error recorded for tasks left without a result.
func (e *Executor) batchErr(parent, bctx context.Context, quit chan struct{}) error {
	select {
	case <-quit:
		return ErrNotRunning
	default:
	}
	if err := parent.Err(); err != nil {
		return err
	}
	if bctx.Err() != nil {
		e.logger.Warn("batch deadline exceeded", zap.Duration("timeout", e.opts.BatchTimeout))
		return ErrBatchTimeout
	}
	return nil
}

// enqueue hands j to the pool. It reports false when the batch or the pool
// is gone; the task is then finalized by the batch's close.
func (e *Executor) enqueue(quit chan struct{}, j *job) bool {
	select {
	case e.queue <- j:
		return true
	case <-j.b.ctx.Done():
		return false
	case <-quit:
		return false
	}
}

func (e *Executor) work(quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case j := <-e.queue:
			if j.b.isClosed() || j.b.ctx.Err() != nil {
				continue
			}
			e.attempt(quit, j)
		}
	}
}

// attempt runs one try of j and either records the final result or
// schedules a retry.
func (e *Executor) attempt(quit chan struct{}, j *job) {
	j.attempts++
	t := j.task
	e.emit(ProgressEvent{TaskID: t.ID, Path: t.Path, Type: t.Type, Status: ProgressWorking, Attempt: j.attempts})

	ctx, span := tracer.Start(j.b.ctx, "orchestrator.task")
	span.SetAttributes(
		attribute.String("task.path", t.Path),
		attribute.String("task.type", t.Type.String()),
		attribute.Int("task.priority", t.Priority),
		attribute.Int("task.attempt", j.attempts),
	)
	defer span.End()

	start := time.Now()
	findings, err := e.runWithTimeout(ctx, t)
	elapsed := time.Since(start)

	if err == nil {
		span.SetStatus(codes.Ok, "")
		if e.opts.Timings != nil && t.Type != TaskCleanup {
			e.opts.Timings.Set(t.Path, elapsed)
		}
		e.opts.Observer.TaskFinished(t, true, elapsed)
		e.emit(ProgressEvent{TaskID: t.ID, Path: t.Path, Type: t.Type, Status: ProgressComplete, Attempt: j.attempts})
		j.b.record(TaskResult{Task: t, Success: true, Findings: findings, ExecTime: elapsed, Attempts: j.attempts})
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if t.RetryCount < t.MaxRetries && j.b.ctx.Err() == nil {
		j.task.RetryCount++
		delay := e.opts.RetryBaseDelay << (j.task.RetryCount - 1)
		e.logger.Debug("task failed, retrying",
			zap.String("path", t.Path),
			zap.Int("retry", j.task.RetryCount),
			zap.Duration("delay", delay),
			zap.Error(err))
		e.opts.Observer.TaskRetried(j.task)
		e.emit(ProgressEvent{TaskID: t.ID, Path: t.Path, Type: t.Type, Status: ProgressRetrying,
			Attempt: j.attempts, Message: err.Error()})
		j.b.schedule(delay, func() { e.enqueue(quit, j) })
		return
	}

	e.logger.Warn("task failed",
		zap.String("path", t.Path),
		zap.String("type", t.Type.String()),
		zap.Int("attempts", j.attempts),
		zap.Error(err))
	e.opts.Observer.TaskFinished(t, false, elapsed)
	e.emit(ProgressEvent{TaskID: t.ID, Path: t.Path, Type: t.Type, Status: ProgressFailed,
		Attempt: j.attempts, Message: err.Error()})
	j.b.record(TaskResult{Task: t, Err: err, ExecTime: elapsed, Attempts: j.attempts})
}

// runWithTimeout runs the task handler under the per-task timeout. A handler
// that ignores its context is abandoned when the timeout fires so the
// worker can move on. When the batch context ends first, the error is
// ErrBatchTimeout or the batch's cancellation cause.
func (e *Executor) runWithTimeout(parent context.Context, t AnalysisTask) (Findings, error) {
	findings, err := e.runAttempt(parent, t)
	if err != nil && parent.Err() != nil {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return nil, ErrBatchTimeout
		}
		return nil, parent.Err()
	}
	return findings, err
}

func (e *Executor) runAttempt(parent context.Context, t AnalysisTask) (Findings, error) {
	ctx, cancel := context.WithTimeout(parent, e.opts.TaskTimeout)
	defer cancel()

	type outcome struct {
		findings Findings
		err      error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: &panicError{value: r}}
			}
		}()
		f, err := e.runTask(ctx, t)
		ch <- outcome{findings: f, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrTaskTimeout, e.opts.TaskTimeout, out.err)
		}
		return out.findings, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, e.opts.TaskTimeout)
		}
		return nil, ctx.Err()
	}
}

// runTask dispatches on the task type.
func (e *Executor) runTask(ctx context.Context, t AnalysisTask) (Findings, error) {
	switch t.Type {
	case TaskCleanup:
		return nil, e.cleanup(ctx, t)
	case TaskFullAnalysis, TaskIncrementalAnalysis:
		return e.analyzeSource(ctx, t)
	case TaskConfigAnalysis, TaskGenericAnalysis:
		return e.analyzeFile(ctx, t)
	default:
		return nil, fmt.Errorf("executor: unknown task type %d", int(t.Type))
	}
}

func (e *Executor) cleanup(ctx context.Context, t AnalysisTask) error {
	if e.opts.Cleanup == nil {
		return nil
	}
	if err := e.opts.Cleanup(ctx, t.Path); err != nil {
		return fmt.Errorf("executor: cleanup %s: %w", t.Path, err)
	}
	return nil
}

func (e *Executor) analyzeSource(ctx context.Context, t AnalysisTask) (Findings, error) {
	content, err := e.opts.FS.ReadFile(t.Path)
	if err != nil {
		return nil, fmt.Errorf("executor: read %s: %w", t.Path, err)
	}
	findings, err := e.opts.Analyzer.Analyze(ctx, t.Path, content)
	if err != nil {
		return nil, fmt.Errorf("executor: analyze %s: %w", t.Path, err)
	}
	return findings, nil
}

// analyzeFile handles non-source files; an empty file has nothing to check.
func (e *Executor) analyzeFile(ctx context.Context, t AnalysisTask) (Findings, error) {
	content, err := e.opts.FS.ReadFile(t.Path)
	if err != nil {
		return nil, fmt.Errorf("executor: read %s: %w", t.Path, err)
	}
	if len(content) == 0 {
		return nil, nil
	}
	findings, err := e.opts.Analyzer.Analyze(ctx, t.Path, content)
	if err != nil {
		return nil, fmt.Errorf("executor: analyze %s: %w", t.Path, err)
	}
	return findings, nil
}

// emit sends a progress event if a callback is registered.
func (e *Executor) emit(ev ProgressEvent) {
	if e.opts.Progress != nil {
		e.opts.Progress(ev)
	}
}

// ---------- batch bookkeeping ----------

func (b *batch) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// record stores a final result. Results arriving after close are dropped.
func (b *batch) record(r TaskResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, dup := b.results[r.Task.ID]; dup {
		return
	}
	b.results[r.Task.ID] = r
	b.pending--
	if b.pending == 0 {
		close(b.done)
	}
}

// schedule arms a retry timer owned by the batch.
func (b *batch) schedule(delay time.Duration, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.timers = append(b.timers, time.AfterFunc(delay, fn))
}

// close stops pending retries and fills in a failure for every task without
// a result. It returns a copy of the results.
func (b *batch) close(tasks []AnalysisTask, cause error) map[string]TaskResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, t := range b.timers {
		t.Stop()
	}
	if cause == nil {
		cause = ErrBatchTimeout
	}
	out := make(map[string]TaskResult, len(tasks))
	for _, t := range tasks {
		if r, ok := b.results[t.ID]; ok {
			out[t.ID] = r
			continue
		}
		out[t.ID] = TaskResult{Task: t, Err: cause}
	}
	return out
}
