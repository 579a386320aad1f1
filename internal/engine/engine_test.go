package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codesweep/internal/change"
	"github.com/dusk-indust/codesweep/internal/config"
	"github.com/dusk-indust/codesweep/internal/history"
	"github.com/dusk-indust/codesweep/internal/orchestrator"
	"github.com/dusk-indust/codesweep/internal/storage"
)

// fakePool implements Pool with func fields.
type fakePool struct {
	startFn   func() error
	executeFn func(ctx context.Context, tasks []orchestrator.AnalysisTask) (map[string]orchestrator.TaskResult, error)
	stopped   atomic.Bool
}

func (p *fakePool) Start() error {
	if p.startFn != nil {
		return p.startFn()
	}
	return nil
}

func (p *fakePool) Stop() { p.stopped.Store(true) }

func (p *fakePool) Execute(ctx context.Context, tasks []orchestrator.AnalysisTask) (map[string]orchestrator.TaskResult, error) {
	return p.executeFn(ctx, tasks)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.MaxRetries = 1
	cfg.RetryBaseDelay = time.Millisecond
	cfg.TaskTimeout = 5 * time.Second
	return cfg
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Config == nil {
		opts.Config = testConfig()
	}
	e, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// writeTree writes files (relative path to content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// abcTree is a three-file chain: c imports b, b imports a.
func abcTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.ts": "export const a = 1;\n",
		"b.ts": "import { a } from './a';\nexport const b = a;\n",
		"c.ts": "import { b } from './b';\nexport const c = b;\n",
	})
	return root
}

func analyze(t *testing.T, e *Engine, root string, changed []string) *Report {
	t.Helper()
	r, err := e.Analyze(context.Background(), root, changed)
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func taskPaths(ds []TaskDetail) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = filepath.Base(d.Path)
	}
	return out
}

// ---------------------------------------------------------------------------
// Construction and lifecycle
// ---------------------------------------------------------------------------

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg := config.Default()
	cfg.MaxImpactDepth = 0
	_, err = New(Options{Config: cfg})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestEngine_Lifecycle(t *testing.T) {
	e := newTestEngine(t, Options{})
	assert.Equal(t, StateStopped, e.State())

	require.NoError(t, e.Start())
	assert.Equal(t, StateRunning, e.State())
	require.NoError(t, e.Start(), "starting a running engine is a no-op")

	require.NoError(t, e.Stop())
	assert.Equal(t, StateStopped, e.State())
	require.NoError(t, e.Stop(), "stopping a stopped engine is a no-op")

	require.NoError(t, e.Close())
	assert.Equal(t, StateClosed, e.State())
	require.NoError(t, e.Close(), "close is idempotent")

	assert.ErrorIs(t, e.Start(), ErrEngineClosed)
	assert.ErrorIs(t, e.Stop(), ErrEngineClosed)
	_, err := e.Analyze(context.Background(), t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_AnalyzeStartsStoppedEngine(t *testing.T) {
	e := newTestEngine(t, Options{})
	analyze(t, e, abcTree(t), nil)
	assert.Equal(t, StateRunning, e.State())
}

func TestEngine_StopStopsPool(t *testing.T) {
	pool := &fakePool{executeFn: func(context.Context, []orchestrator.AnalysisTask) (map[string]orchestrator.TaskResult, error) {
		return map[string]orchestrator.TaskResult{}, nil
	}}
	e := newTestEngine(t, Options{PoolFactory: func(orchestrator.ExecutorOptions) (Pool, error) { return pool, nil }})
	require.NoError(t, e.Start())
	require.NoError(t, e.Stop())
	assert.True(t, pool.stopped.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}

// ---------------------------------------------------------------------------
// Incremental runs
// ---------------------------------------------------------------------------

func TestEngine_FirstRunThenNoop(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := abcTree(t)

	first := analyze(t, e, root, nil)
	assert.Equal(t, AnalysisIncremental, first.AnalysisType)
	assert.True(t, first.Success)
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, 3, first.FilesChanged)
	assert.Equal(t, 3, first.FilesDiscovered)
	assert.Zero(t, first.CacheHits)
	assert.NotEmpty(t, first.RunID)

	second := analyze(t, e, root, nil)
	assert.Equal(t, AnalysisNoop, second.AnalysisType)
	assert.True(t, second.Success)
	assert.Zero(t, second.Total)
	assert.Equal(t, 3, second.CacheHits)
	assert.Positive(t, second.EstimatedTimeSaved)
	assert.InDelta(t, 1.0, second.SuccessRate, 1e-9)
	assert.NotEqual(t, first.RunID, second.RunID)

	stats := e.Stats()
	assert.Equal(t, "running", stats.State)
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 3, stats.CacheHits)
	assert.Equal(t, 3, stats.CacheMisses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, 3, stats.TrackedFiles)
	assert.Equal(t, 3, stats.GraphNodes)
	assert.Zero(t, stats.Fallbacks)

	assert.Len(t, e.History(), 3)
}

func TestEngine_ChangeImpact(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := abcTree(t)
	a, b, c := filepath.Join(root, "a.ts"), filepath.Join(root, "b.ts"), filepath.Join(root, "c.ts")
	analyze(t, e, root, nil)

	assert.Equal(t, map[string]map[string]struct{}{
		a: {b: {}, c: {}},
	}, e.AssessImpact(root, []string{"a.ts"}))

	writeTree(t, root, map[string]string{"a.ts": "export const a = 2;\n"})
	r := analyze(t, e, root, nil)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, a, r.Tasks[0].Path)
	assert.Equal(t, orchestrator.TaskIncrementalAnalysis, r.Tasks[0].Type)
	assert.Equal(t, []string{b, c}, r.Tasks[0].ImpactScope)
	assert.Equal(t, 2, r.ImpactScope)
	assert.Equal(t, 2, r.CacheHits)

	// b drops its import of a.
	writeTree(t, root, map[string]string{"b.ts": "export const b = 2;\n"})
	r = analyze(t, e, root, nil)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, []string{c}, r.Tasks[0].ImpactScope)
	assert.NotContains(t, e.Graph().Dependents(a), b)
	assert.Equal(t, map[string]map[string]struct{}{a: {}}, e.AssessImpact(root, []string{a}))
	require.NoError(t, e.Graph().CheckSymmetry())
}

func TestEngine_ChangedFilesSubset(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := abcTree(t)
	analyze(t, e, root, nil)

	writeTree(t, root, map[string]string{
		"a.ts": "export const a = 3;\n",
		"c.ts": "export const c = 3;\n",
	})
	r := analyze(t, e, root, []string{"a.ts"})
	assert.Equal(t, []string{"a.ts"}, taskPaths(r.Tasks))

	r = analyze(t, e, root, nil)
	assert.Equal(t, []string{"c.ts"}, taskPaths(r.Tasks), "c is still pending")
}

func TestEngine_DeletedFileIsCleanedUp(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := abcTree(t)
	b, c := filepath.Join(root, "b.ts"), filepath.Join(root, "c.ts")
	analyze(t, e, root, nil)

	require.NoError(t, os.Remove(c))
	r := analyze(t, e, root, nil)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, orchestrator.TaskCleanup, r.Tasks[0].Type)
	assert.True(t, r.Tasks[0].Success)

	_, ok := e.Graph().Node(c)
	assert.False(t, ok)
	assert.Empty(t, e.Graph().Dependents(b))

	stats, err := e.Store().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)
}

func TestEngine_RestoredFileRegainsImporters(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := abcTree(t)
	a, b, c := filepath.Join(root, "a.ts"), filepath.Join(root, "b.ts"), filepath.Join(root, "c.ts")
	analyze(t, e, root, nil)

	require.NoError(t, os.Remove(a))
	analyze(t, e, root, nil)
	assert.Empty(t, e.Graph().Dependencies(b))

	writeTree(t, root, map[string]string{"a.ts": "export const a = 1;\n"})
	analyze(t, e, root, nil)
	assert.Equal(t, []string{b}, e.Graph().Dependents(a))
	assert.Equal(t, []string{a}, e.Graph().Dependencies(b))

	writeTree(t, root, map[string]string{"a.ts": "export const a = 2;\n"})
	r := analyze(t, e, root, nil)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, a, r.Tasks[0].Path)
	assert.Equal(t, []string{b, c}, r.Tasks[0].ImpactScope)
	require.NoError(t, e.Graph().CheckSymmetry())
}

// goTree is a two-file model package imported by api.
func goTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":     "module example.com/shop\n",
		"model/a.go": "package model\n\nconst A = 1\n",
		"model/b.go": "package model\n\nconst B = 2\n",
		"api/api.go": "package api\n\nimport \"example.com/shop/model\"\n\nvar X = model.A + model.B\n",
	})
	return root
}

func TestEngine_GoPackageImpact(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := goTree(t)
	api := filepath.Join(root, "api/api.go")
	analyze(t, e, root, nil)

	assert.Equal(t, []string{
		filepath.Join(root, "model/a.go"),
		filepath.Join(root, "model/b.go"),
	}, e.Graph().Dependencies(api))

	writeTree(t, root, map[string]string{"model/b.go": "package model\n\nconst B = 3\n"})
	r := analyze(t, e, root, nil)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, "b.go", filepath.Base(r.Tasks[0].Path))
	assert.Equal(t, []string{api}, r.Tasks[0].ImpactScope)
}

func TestEngine_NewGoPackageFileJoinsImporters(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := goTree(t)
	api, c := filepath.Join(root, "api/api.go"), filepath.Join(root, "model/c.go")
	analyze(t, e, root, nil)

	writeTree(t, root, map[string]string{"model/c.go": "package model\n\nconst C = 3\n"})
	analyze(t, e, root, nil)
	assert.Contains(t, e.Graph().Dependencies(api), c)

	writeTree(t, root, map[string]string{"model/c.go": "package model\n\nconst C = 4\n"})
	r := analyze(t, e, root, nil)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, []string{api}, r.Tasks[0].ImpactScope)
	require.NoError(t, e.Graph().CheckSymmetry())
}

func TestEngine_FailedTasksAreReported(t *testing.T) {
	var calls atomic.Int32
	analyzer := orchestrator.AnalyzerFunc(func(_ context.Context, path string, _ []byte) (orchestrator.Findings, error) {
		calls.Add(1)
		if strings.HasSuffix(path, "b.ts") {
			return nil, errors.New("lint crashed")
		}
		return orchestrator.Findings{{Rule: "style", Message: "ok", Line: 1}}, nil
	})
	e := newTestEngine(t, Options{Analyzer: analyzer})
	root := abcTree(t)

	r := analyze(t, e, root, nil)
	assert.Equal(t, AnalysisIncremental, r.AnalysisType)
	assert.False(t, r.Success)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Successful)
	assert.Equal(t, 1, r.Failed)
	assert.InDelta(t, 2.0/3.0, r.SuccessRate, 1e-9)
	assert.Equal(t, 2, r.FindingsCount)
	require.Len(t, r.FailedTasks, 1)
	assert.Equal(t, "b.ts", filepath.Base(r.FailedTasks[0].Path))
	assert.Contains(t, r.FailedTasks[0].Error, "lint crashed")
	assert.Equal(t, 2, r.FailedTasks[0].Attempts)
}

func TestEngine_PersistsAcrossInstances(t *testing.T) {
	state, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })
	root := abcTree(t)
	a, b, c := filepath.Join(root, "a.ts"), filepath.Join(root, "b.ts"), filepath.Join(root, "c.ts")

	first := newTestEngine(t, Options{State: state})
	analyze(t, first, root, nil)
	require.NoError(t, first.Close())

	hashes, err := state.LoadHashes()
	require.NoError(t, err)
	assert.Len(t, hashes, 3)
	_, ok, err := state.Get(history.TimingKeyPrefix + b)
	require.NoError(t, err)
	assert.True(t, ok, "timings are written through")

	second := newTestEngine(t, Options{State: state})
	r := analyze(t, second, root, nil)
	assert.Equal(t, AnalysisNoop, r.AnalysisType)
	assert.Equal(t, 3, r.CacheHits)
	assert.Equal(t, map[string]map[string]struct{}{
		a: {b: {}, c: {}},
	}, second.AssessImpact(root, []string{a}), "unchanged files are indexed on the first run")
}

func TestEngine_HistoryRecordsChanges(t *testing.T) {
	cfg := testConfig()
	cfg.ChangeHistorySize = 2
	e := newTestEngine(t, Options{Config: cfg})
	root := abcTree(t)
	analyze(t, e, root, nil)

	h := e.History()
	require.Len(t, h, 2)
	for _, rec := range h {
		assert.Equal(t, change.ChangeAdded, rec.Type)
	}

	writeTree(t, root, map[string]string{"a.ts": "export const a = 5;\n"})
	analyze(t, e, root, nil)
	recent := e.RecentChanges(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "a.ts", filepath.Base(recent[0].Path))
	assert.Equal(t, change.ChangeModified, recent[0].Type)
	assert.Equal(t, h[1], e.RecentChanges(2)[0])
}

func TestEngine_StateDirIsIgnored(t *testing.T) {
	e := newTestEngine(t, Options{})
	root := abcTree(t)
	writeTree(t, root, map[string]string{".codesweep/cache.json": "{}"})

	r := analyze(t, e, root, nil)
	assert.Equal(t, 3, r.FilesDiscovered)
}

// ---------------------------------------------------------------------------
// Degraded runs
// ---------------------------------------------------------------------------

func TestEngine_PoolFailureFallsBack(t *testing.T) {
	var calls atomic.Int32
	analyzer := orchestrator.AnalyzerFunc(func(context.Context, string, []byte) (orchestrator.Findings, error) {
		calls.Add(1)
		return nil, nil
	})
	e := newTestEngine(t, Options{
		Analyzer: analyzer,
		PoolFactory: func(orchestrator.ExecutorOptions) (Pool, error) {
			return nil, errors.New("no threads for you")
		},
	})
	root := abcTree(t)

	r := analyze(t, e, root, nil)
	assert.Equal(t, AnalysisFullFallback, r.AnalysisType)
	assert.True(t, r.Success)
	assert.Equal(t, 3, r.FilesDiscovered)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, int32(3), calls.Load())
	require.NotEmpty(t, r.Warnings)
	assert.Contains(t, r.Warnings[0], "no threads for you")

	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, 1, e.Stats().Fallbacks)
}

func TestEngine_PipelinePanicFallsBack(t *testing.T) {
	pool := &fakePool{executeFn: func(context.Context, []orchestrator.AnalysisTask) (map[string]orchestrator.TaskResult, error) {
		panic("corrupt queue")
	}}
	e := newTestEngine(t, Options{PoolFactory: func(orchestrator.ExecutorOptions) (Pool, error) { return pool, nil }})

	r := analyze(t, e, abcTree(t), nil)
	assert.Equal(t, AnalysisFullFallback, r.AnalysisType)
	assert.Equal(t, 3, r.Total)
	require.NotEmpty(t, r.Warnings)
	assert.Contains(t, r.Warnings[0], "corrupt queue")
}

func TestEngine_ExecuteErrorFallsBack(t *testing.T) {
	pool := &fakePool{executeFn: func(context.Context, []orchestrator.AnalysisTask) (map[string]orchestrator.TaskResult, error) {
		return nil, orchestrator.ErrNotRunning
	}}
	e := newTestEngine(t, Options{PoolFactory: func(orchestrator.ExecutorOptions) (Pool, error) { return pool, nil }})

	r := analyze(t, e, abcTree(t), nil)
	assert.Equal(t, AnalysisFullFallback, r.AnalysisType)
}

func TestEngine_FallbackReportsFileFailures(t *testing.T) {
	analyzer := orchestrator.AnalyzerFunc(func(_ context.Context, path string, _ []byte) (orchestrator.Findings, error) {
		if strings.HasSuffix(path, "c.ts") {
			panic("boom")
		}
		return nil, nil
	})
	e := newTestEngine(t, Options{
		Analyzer:    analyzer,
		PoolFactory: func(orchestrator.ExecutorOptions) (Pool, error) { return nil, errors.New("down") },
	})

	r := analyze(t, e, abcTree(t), nil)
	assert.Equal(t, AnalysisFullFallback, r.AnalysisType)
	assert.False(t, r.Success)
	assert.Equal(t, 1, r.Failed)
	require.Len(t, r.FailedTasks, 1)
	assert.Equal(t, "c.ts", filepath.Base(r.FailedTasks[0].Path))
}

func TestEngine_FallbackAbandonsStuckAnalyzer(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	analyzer := orchestrator.AnalyzerFunc(func(_ context.Context, path string, _ []byte) (orchestrator.Findings, error) {
		if strings.HasSuffix(path, "b.ts") {
			<-release // ignores ctx
		}
		return nil, nil
	})
	cfg := testConfig()
	cfg.TaskTimeout = 20 * time.Millisecond
	e := newTestEngine(t, Options{
		Config:      cfg,
		Analyzer:    analyzer,
		PoolFactory: func(orchestrator.ExecutorOptions) (Pool, error) { return nil, errors.New("down") },
	})

	root := abcTree(t)
	done := make(chan *Report, 1)
	go func() {
		r, _ := e.Analyze(context.Background(), root, nil)
		done <- r
	}()

	var r *Report
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fallback waited on a stuck analyzer")
	}
	require.NotNil(t, r)
	assert.Equal(t, AnalysisFullFallback, r.AnalysisType)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Successful)
	require.Len(t, r.FailedTasks, 1)
	assert.Equal(t, "b.ts", filepath.Base(r.FailedTasks[0].Path))
	assert.Contains(t, r.FailedTasks[0].Error, orchestrator.ErrTaskTimeout.Error())
}

func TestEngine_FallbackRespectsScanCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTrackedFiles = 2
	e := newTestEngine(t, Options{
		Config:      cfg,
		PoolFactory: func(orchestrator.ExecutorOptions) (Pool, error) { return nil, errors.New("down") },
	})

	r := analyze(t, e, abcTree(t), nil)
	assert.Equal(t, 2, r.Total)
	assert.Contains(t, r.Warnings, "full scan truncated to maxTrackedFiles")
}

func TestEngine_CanceledContext(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Analyze(ctx, abcTree(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
