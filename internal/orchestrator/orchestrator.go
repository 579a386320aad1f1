package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTaskTimeout marks an attempt that exceeded the per-task timeout.
	ErrTaskTimeout = errors.New("task timeout")
	// ErrBatchTimeout marks a task that had no final result when the batch
	// deadline passed.
	ErrBatchTimeout = errors.New("batch timeout")
	// ErrNotRunning is returned by Execute before Start or after Stop.
	ErrNotRunning = errors.New("executor not running")
)

// TaskType is the kind of work an AnalysisTask performs. The set is closed;
// Executor dispatches over it with an exhaustive switch.
type TaskType int

const (
	TaskFullAnalysis TaskType = iota
	TaskIncrementalAnalysis
	TaskCleanup
	TaskConfigAnalysis
	TaskGenericAnalysis
)

func (t TaskType) String() string {
	switch t {
	case TaskFullAnalysis:
		return "full_analysis"
	case TaskIncrementalAnalysis:
		return "incremental_analysis"
	case TaskCleanup:
		return "cleanup"
	case TaskConfigAnalysis:
		return "config_analysis"
	case TaskGenericAnalysis:
		return "generic_analysis"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON reports.
func (t TaskType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// AnalysisTask is one unit of work for the executor.
type AnalysisTask struct {
	ID   string   `json:"id"`
	Path string   `json:"path"`
	Type TaskType `json:"type"`
	// Priority is 1 (most urgent) to 3.
	Priority      int           `json:"priority"`
	ImpactScope   []string      `json:"impactScope,omitempty"`
	EstimatedTime time.Duration `json:"estimatedTime"`
	RetryCount    int           `json:"retryCount"`
	MaxRetries    int           `json:"maxRetries"`
}

// Finding is a single issue reported by an Analyzer. The engine only counts
// and forwards findings.
type Finding struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// Findings is the opaque output of one analysis.
type Findings []Finding

// Analyzer inspects one file's content.
type Analyzer interface {
	Analyze(ctx context.Context, path string, content []byte) (Findings, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, path string, content []byte) (Findings, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, path string, content []byte) (Findings, error) {
	return f(ctx, path, content)
}

// NopAnalyzer accepts every file without findings.
var NopAnalyzer Analyzer = AnalyzerFunc(func(context.Context, string, []byte) (Findings, error) {
	return nil, nil
})

// TaskResult is the final outcome of a task after all attempts.
type TaskResult struct {
	Task     AnalysisTask
	Success  bool
	Findings Findings
	Err      error
	// ExecTime is the duration of the last attempt.
	ExecTime time.Duration
	Attempts int
}

// ProgressEvent is emitted as tasks move through the executor.
type ProgressEvent struct {
	TaskID  string
	Path    string
	Type    TaskType
	Status  ProgressStatus
	Attempt int
	Message string
}

// ProgressStatus is the state of a task within a batch.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressRetrying ProgressStatus = "retrying"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// Observer receives per-task telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	TaskFinished(task AnalysisTask, success bool, d time.Duration)
	TaskRetried(task AnalysisTask)
}

type nopObserver struct{}

func (nopObserver) TaskFinished(AnalysisTask, bool, time.Duration) {}
func (nopObserver) TaskRetried(AnalysisTask)                       {}

// panicError wraps a value recovered from a panicking handler.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
