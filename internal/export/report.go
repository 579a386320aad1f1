package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dusk-indust/codesweep/internal/engine"
	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

// ReportView is the JSON shape of an engine.Report. Durations are
// milliseconds; paths are relative to the analyzed root when one is given.
type ReportView struct {
	RunID                string     `json:"runId"`
	AnalysisType         string     `json:"analysisType"`
	Success              bool       `json:"success"`
	StartedAt            string     `json:"startedAt"`
	DurationMs           int64      `json:"durationMs"`
	TotalTasks           int        `json:"totalTasks"`
	SuccessfulTasks      int        `json:"successfulTasks"`
	FailedTasks          int        `json:"failedTasks"`
	SuccessRate          float64    `json:"successRate"`
	TotalExecutionTimeMs int64      `json:"totalExecutionTimeMs"`
	CacheHits            int        `json:"cacheHits"`
	EstimatedTimeSavedMs int64      `json:"estimatedTimeSavedMs"`
	FilesChanged         int        `json:"filesChanged"`
	FilesDiscovered      int        `json:"filesDiscovered"`
	ImpactScope          int        `json:"impactScope"`
	FindingsCount        int        `json:"findingsCount"`
	Tasks                []TaskView `json:"tasks,omitempty"`
	Failures             []TaskView `json:"failures,omitempty"`
	Warnings             []string   `json:"warnings,omitempty"`
}

// TaskView is one task line of a ReportView.
type TaskView struct {
	ID          string                `json:"id,omitempty"`
	Path        string                `json:"path"`
	Type        string                `json:"type"`
	Priority    int                   `json:"priority"`
	Success     bool                  `json:"success"`
	Error       string                `json:"error,omitempty"`
	ExecTimeMs  int64                 `json:"execTimeMs"`
	Attempts    int                   `json:"attempts"`
	Findings    orchestrator.Findings `json:"findings,omitempty"`
	ImpactScope []string              `json:"impactScope,omitempty"`
}

// NewReportView converts r. A non-empty root makes paths relative to it.
func NewReportView(r *engine.Report, root string) ReportView {
	v := ReportView{
		RunID:                r.RunID,
		AnalysisType:         r.AnalysisType,
		Success:              r.Success,
		DurationMs:           r.Duration.Milliseconds(),
		TotalTasks:           r.Total,
		SuccessfulTasks:      r.Successful,
		FailedTasks:          r.Failed,
		SuccessRate:          r.SuccessRate,
		TotalExecutionTimeMs: r.TotalExecTime.Milliseconds(),
		CacheHits:            r.CacheHits,
		EstimatedTimeSavedMs: r.EstimatedTimeSaved.Milliseconds(),
		FilesChanged:         r.FilesChanged,
		FilesDiscovered:      r.FilesDiscovered,
		ImpactScope:          r.ImpactScope,
		FindingsCount:        r.FindingsCount,
		Warnings:             r.Warnings,
	}
	if !r.StartedAt.IsZero() {
		v.StartedAt = r.StartedAt.UTC().Format(time.RFC3339)
	}
	for _, d := range r.Tasks {
		v.Tasks = append(v.Tasks, newTaskView(d, root))
	}
	for _, d := range r.FailedTasks {
		v.Failures = append(v.Failures, newTaskView(d, root))
	}
	return v
}

func newTaskView(d engine.TaskDetail, root string) TaskView {
	tv := TaskView{
		ID:         d.ID,
		Path:       RelPath(root, d.Path),
		Type:       d.Type.String(),
		Priority:   d.Priority,
		Success:    d.Success,
		Error:      d.Error,
		ExecTimeMs: d.ExecTime.Milliseconds(),
		Attempts:   d.Attempts,
		Findings:   d.Findings,
	}
	for _, p := range d.ImpactScope {
		tv.ImpactScope = append(tv.ImpactScope, RelPath(root, p))
	}
	return tv
}

// StatsView is the JSON shape of engine.Stats.
type StatsView struct {
	State        string  `json:"state"`
	Runs         int     `json:"runs"`
	Fallbacks    int     `json:"fallbacks"`
	CacheHits    int     `json:"cacheHits"`
	CacheMisses  int     `json:"cacheMisses"`
	HitRate      float64 `json:"hitRate"`
	TimeSavedMs  int64   `json:"timeSavedMs"`
	TrackedFiles int     `json:"trackedFiles"`
	GraphNodes   int     `json:"graphNodes"`
}

// NewStatsView converts s.
func NewStatsView(s engine.Stats) StatsView {
	return StatsView{
		State:        s.State,
		Runs:         s.Runs,
		Fallbacks:    s.Fallbacks,
		CacheHits:    s.CacheHits,
		CacheMisses:  s.CacheMisses,
		HitRate:      s.HitRate,
		TimeSavedMs:  s.TimeSaved.Milliseconds(),
		TrackedFiles: s.TrackedFiles,
		GraphNodes:   s.GraphNodes,
	}
}

// WriteReportJSON writes r as indented JSON.
func WriteReportJSON(w io.Writer, r *engine.Report, root string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewReportView(r, root)); err != nil {
		return fmt.Errorf("export: encode report: %w", err)
	}
	return nil
}

// RelPath returns path relative to root, or path unchanged when root is
// empty or path lies outside it.
func RelPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}
