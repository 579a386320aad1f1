package orchestrator

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/change"
	"github.com/dusk-indust/codesweep/internal/config"
	"github.com/dusk-indust/codesweep/internal/graph"
	"github.com/dusk-indust/codesweep/internal/history"
	"github.com/dusk-indust/codesweep/internal/source"
)

// HighImpactThreshold is the impacted-file count at which a change becomes
// priority 1.
const HighImpactThreshold = 10

// Scheduler turns change records and impact scopes into a prioritized task
// list.
type Scheduler struct {
	classifier *source.Classifier
	timings    history.TimingStore
	estimator  config.Estimator
	maxRetries int
	graph      *graph.DependencyGraph
	logger     *zap.Logger
	newID      func() string
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Classifier *source.Classifier
	// Timings supplies measured durations; nil means heuristic only.
	Timings    history.TimingStore
	Estimator  config.Estimator
	MaxRetries int
	// Graph, when set, receives each task's priority and estimate.
	Graph  *graph.DependencyGraph
	Logger *zap.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		classifier: opts.Classifier,
		timings:    opts.Timings,
		estimator:  opts.Estimator,
		maxRetries: opts.MaxRetries,
		graph:      opts.Graph,
		logger:     opts.Logger.Named("scheduler"),
		newID:      uuid.NewString,
	}
}

// PriorityFor maps an impact-scope size to a priority: 1 when at least
// HighImpactThreshold files are impacted, 2 when any are, 3 otherwise.
func PriorityFor(impacted int) int {
	switch {
	case impacted >= HighImpactThreshold:
		return 1
	case impacted > 0:
		return 2
	default:
		return 3
	}
}

// TaskTypeFor derives the task type from the change and the file kind.
func TaskTypeFor(ct change.ChangeType, kind source.Kind) TaskType {
	switch {
	case ct == change.ChangeDeleted:
		return TaskCleanup
	case kind == source.KindSource && ct == change.ChangeAdded:
		return TaskFullAnalysis
	case kind == source.KindSource:
		return TaskIncrementalAnalysis
	case kind == source.KindConfig:
		return TaskConfigAnalysis
	default:
		return TaskGenericAnalysis
	}
}

// CreateTasks builds one task per change that requires analysis, sorted
// ascending by priority. Within a priority, better-connected files come
// first; remaining ties keep the order of changes.
func (s *Scheduler) CreateTasks(changes []change.FileChangeRecord, impact map[string]map[string]struct{}) []AnalysisTask {
	tasks := make([]AnalysisTask, 0, len(changes))
	for _, c := range changes {
		if !c.AnalysisRequired {
			continue
		}
		scope := slices.Sorted(maps.Keys(impact[c.Path]))
		typ := TaskTypeFor(c.Type, s.classifier.Kind(c.Path))

		var estimate time.Duration
		if typ != TaskCleanup {
			estimate = s.EstimateTime(c.Path, c.Size)
		}
		task := AnalysisTask{
			ID:            s.newID(),
			Path:          c.Path,
			Type:          typ,
			Priority:      PriorityFor(len(scope)),
			ImpactScope:   scope,
			EstimatedTime: estimate,
			MaxRetries:    s.maxRetries,
		}
		if s.graph != nil && typ != TaskCleanup {
			s.graph.SetSchedule(c.Path, task.Priority, estimate)
		}
		tasks = append(tasks, task)
	}

	// Within a priority band, files with more graph edges go first.
	rank := make(map[string]int, len(tasks))
	if s.graph != nil {
		paths := make([]string, len(tasks))
		for i, t := range tasks {
			paths[i] = t.Path
		}
		for i, p := range s.graph.PriorityOrder(paths) {
			rank[p] = i
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return rank[tasks[i].Path] < rank[tasks[j].Path]
	})
	s.logger.Debug("tasks scheduled", zap.Int("tasks", len(tasks)), zap.Int("changes", len(changes)))
	return tasks
}

// EstimateTime predicts how long analyzing a file of size bytes will take.
// The size heuristic is blended with the last measured duration when one is
// known.
func (s *Scheduler) EstimateTime(path string, size int64) time.Duration {
	perKB := s.estimator.OtherMsPerKB
	if s.classifier.Kind(path) == source.KindSource {
		perKB = s.estimator.SourceMsPerKB
	}
	ms := s.estimator.BaseMs + float64(size)/1024*perKB

	if s.timings != nil {
		if measured, ok := s.timings.Get(path); ok {
			measuredMs := float64(measured) / float64(time.Millisecond)
			ms = s.estimator.HeuristicWeight*ms + s.estimator.HistoryWeight*measuredMs
		}
	}
	return time.Duration(ms * float64(time.Millisecond))
}
