package engine

import (
	"sort"
	"time"

	"github.com/dusk-indust/codesweep/internal/change"
	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

// Analysis types reported in Report.AnalysisType.
const (
	AnalysisIncremental  = "incremental"
	AnalysisFullFallback = "full_fallback"
	AnalysisNoop         = "noop"
)

// TaskDetail is the per-task line of a Report.
type TaskDetail struct {
	ID          string
	Path        string
	Type        orchestrator.TaskType
	Priority    int
	Success     bool
	Error       string
	ExecTime    time.Duration
	Attempts    int
	Findings    orchestrator.Findings
	ImpactScope []string
}

// Report is the outcome of one Analyze call. Callers always receive one;
// Success and FailedTasks carry degraded outcomes.
type Report struct {
	RunID        string
	AnalysisType string
	Success      bool
	StartedAt    time.Time
	Duration     time.Duration

	Total       int
	Successful  int
	Failed      int
	SuccessRate float64
	// TotalExecTime sums the final-attempt durations of all tasks.
	TotalExecTime time.Duration

	CacheHits          int
	EstimatedTimeSaved time.Duration

	FilesChanged    int
	FilesDiscovered int
	// ImpactScope counts distinct files impacted by any change.
	ImpactScope   int
	FindingsCount int

	Tasks       []TaskDetail
	FailedTasks []TaskDetail
	Warnings    []string
}

// aggregateInput is everything one run contributes to its Report.
type aggregateInput struct {
	Results   map[string]orchestrator.TaskResult
	Changes   []change.FileChangeRecord
	Impact    map[string]map[string]struct{}
	CacheHits int
	TimeSaved time.Duration
}

// aggregate folds task results into a Report. Tasks are listed by priority,
// then path.
func aggregate(in aggregateInput) *Report {
	r := &Report{
		AnalysisType:       AnalysisIncremental,
		FilesChanged:       len(in.Changes),
		CacheHits:          in.CacheHits,
		EstimatedTimeSaved: in.TimeSaved,
	}

	impacted := make(map[string]struct{})
	for _, set := range in.Impact {
		for p := range set {
			impacted[p] = struct{}{}
		}
	}
	r.ImpactScope = len(impacted)

	for _, res := range in.Results {
		d := TaskDetail{
			ID:          res.Task.ID,
			Path:        res.Task.Path,
			Type:        res.Task.Type,
			Priority:    res.Task.Priority,
			Success:     res.Success,
			ExecTime:    res.ExecTime,
			Attempts:    res.Attempts,
			Findings:    res.Findings,
			ImpactScope: res.Task.ImpactScope,
		}
		if res.Err != nil {
			d.Error = res.Err.Error()
		}
		r.Tasks = append(r.Tasks, d)
		r.TotalExecTime += res.ExecTime
		r.FindingsCount += len(res.Findings)
		if res.Success {
			r.Successful++
		} else {
			r.Failed++
		}
	}
	sortDetails(r.Tasks)
	for _, d := range r.Tasks {
		if !d.Success {
			r.FailedTasks = append(r.FailedTasks, d)
		}
	}

	r.Total = len(r.Tasks)
	if r.Total > 0 {
		r.SuccessRate = float64(r.Successful) / float64(r.Total)
	} else {
		r.AnalysisType = AnalysisNoop
		r.SuccessRate = 1
	}
	r.Success = r.Failed == 0
	return r
}

func sortDetails(ds []TaskDetail) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Priority != ds[j].Priority {
			return ds[i].Priority < ds[j].Priority
		}
		if ds[i].Path != ds[j].Path {
			return ds[i].Path < ds[j].Path
		}
		return ds[i].ID < ds[j].ID
	})
}
