package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

var (
	errScanCapReached = errors.New("scan cap reached")
	errAnalyzerPanic  = errors.New("panic during analysis")
)

// fallback analyzes every tracked file under root sequentially, without the
// worker pool, the hash table or the graph. It never fails: problems are
// recorded in the report.
func (e *Engine) fallback(ctx context.Context, root string, cause error) *Report {
	e.logger.Error("incremental pipeline failed, running full scan",
		zap.String("root", root), zap.Error(cause))
	e.metrics.Fallback()
	e.statsMu.Lock()
	e.stats.Fallbacks++
	e.statsMu.Unlock()

	r := &Report{
		AnalysisType: AnalysisFullFallback,
		Warnings:     []string{"incremental analysis failed: " + cause.Error()},
	}

	var paths []string
	err := e.fsys.Walk(root, e.classifier.SkipDir, e.classifier.Tracked, func(p string) error {
		if len(paths) >= e.cfg.MaxTrackedFiles {
			return errScanCapReached
		}
		paths = append(paths, p)
		return ctx.Err()
	})
	switch {
	case errors.Is(err, errScanCapReached):
		r.Warnings = append(r.Warnings, "full scan truncated to maxTrackedFiles")
	case err != nil:
		e.logger.Warn("full scan walk failed", zap.Error(err))
		r.Warnings = append(r.Warnings, "full scan walk: "+err.Error())
	}
	sort.Strings(paths)
	r.FilesDiscovered = len(paths)

	for _, p := range paths {
		if ctx.Err() != nil {
			r.Warnings = append(r.Warnings, "full scan interrupted: "+ctx.Err().Error())
			break
		}
		d := e.analyzeOne(ctx, p)
		r.Tasks = append(r.Tasks, d)
		r.TotalExecTime += d.ExecTime
		r.FindingsCount += len(d.Findings)
		if d.Success {
			r.Successful++
		} else {
			r.Failed++
			r.FailedTasks = append(r.FailedTasks, d)
		}
	}
	r.Total = len(r.Tasks)
	r.FilesChanged = r.Total
	if r.Total > 0 {
		r.SuccessRate = float64(r.Successful) / float64(r.Total)
	}
	r.Success = r.Failed == 0
	return r
}

// analyzeOne runs the analyzer on one file under the task timeout. An
// analyzer that overruns the deadline is abandoned, not waited for.
func (e *Engine) analyzeOne(ctx context.Context, path string) (d TaskDetail) {
	d = TaskDetail{Path: path, Type: orchestrator.TaskFullAnalysis, Priority: 3, Attempts: 1}
	start := time.Now()
	defer func() { d.ExecTime = time.Since(start) }()

	content, err := e.fsys.ReadFile(path)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	defer cancel()

	type outcome struct {
		findings orchestrator.Findings
		err      error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: errAnalyzerPanic}
			}
		}()
		f, err := e.analyzer.Analyze(ctx, path, content)
		ch <- outcome{findings: f, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			d.Error = out.err.Error()
			return d
		}
		d.Findings = out.findings
		d.Success = true
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			d.Error = fmt.Sprintf("%v after %s", orchestrator.ErrTaskTimeout, e.cfg.TaskTimeout)
		} else {
			d.Error = ctx.Err().Error()
		}
	}
	return d
}
