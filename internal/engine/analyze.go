package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/codesweep/internal/change"
	"github.com/dusk-indust/codesweep/internal/graph"
	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

var tracer = otel.Tracer("codesweep/engine")

// Analyze runs one incremental pass over root. With nil changedFiles the
// whole tree is scanned for changes; otherwise only the given paths
// (absolute or relative to root) are classified. A stopped engine is started
// first.
//
// File-level failures never surface as errors: they are reported in the
// Report, and a failure of the pipeline itself yields a full-scan fallback
// report. The only errors returned are ErrEngineClosed, ErrInvalidState and
// cancellation of ctx.
func (e *Engine) Analyze(ctx context.Context, root string, changedFiles []string) (*Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := e.now()
	runID := uuid.NewString()
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve root: %w", err)
	}

	ctx, span := tracer.Start(ctx, "engine.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("root", root),
		attribute.Int("changed_files", len(changedFiles)),
	)

	if err := e.ensureRunning(); err != nil {
		if errors.Is(err, ErrEngineClosed) || errors.Is(err, ErrInvalidState) {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		report := e.fallback(ctx, root, err)
		e.finish(report, runID, start)
		return report, nil
	}

	report, err := e.runSafely(ctx, root, changedFiles)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return nil, ctxErr
		}
		report = e.fallback(ctx, root, err)
	}
	e.finish(report, runID, start)

	span.SetAttributes(
		attribute.String("analysis_type", report.AnalysisType),
		attribute.Int("tasks", report.Total),
		attribute.Int("failed", report.Failed),
	)
	if report.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "degraded run")
	}
	return report, nil
}

func (e *Engine) finish(r *Report, runID string, start time.Time) {
	r.RunID = runID
	r.StartedAt = start
	r.Duration = e.now().Sub(start)
	e.logger.Info("analysis finished",
		zap.String("run", runID),
		zap.String("type", r.AnalysisType),
		zap.Int("tasks", r.Total),
		zap.Int("failed", r.Failed),
		zap.Int("cacheHits", r.CacheHits),
		zap.Duration("duration", r.Duration))
}

// runSafely turns a panic anywhere in the pipeline into an error.
func (e *Engine) runSafely(ctx context.Context, root string, changedFiles []string) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: panic: %v", r)
		}
	}()
	return e.run(ctx, root, changedFiles)
}

// run is the incremental pipeline: detect, update the graph, compute
// impact, schedule, execute, aggregate, persist.
func (e *Engine) run(ctx context.Context, root string, changedFiles []string) (*Report, error) {
	scan, err := e.detect(ctx, root, changedFiles)
	if err != nil {
		return nil, err
	}
	e.changes.Push(scan.Changes...)

	if err := e.updateGraph(ctx, root, scan); err != nil {
		return nil, err
	}

	changed := make([]string, len(scan.Changes))
	for i, c := range scan.Changes {
		changed[i] = c.Path
	}
	impact := e.graph.AnalyzeChangeImpact(changed, e.cfg.MaxImpactDepth)
	tasks := e.scheduler.CreateTasks(scan.Changes, impact)

	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	if pool == nil {
		return nil, fmt.Errorf("engine: %w: no worker pool", ErrInvalidState)
	}
	results, err := pool.Execute(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("engine: execute: %w", err)
	}

	var saved time.Duration
	for _, p := range scan.Unchanged {
		entry, _ := e.detector.Entry(p)
		saved += e.scheduler.EstimateTime(p, entry.Size)
	}

	report := aggregate(aggregateInput{
		Results:   results,
		Changes:   scan.Changes,
		Impact:    impact,
		CacheHits: len(scan.Unchanged),
		TimeSaved: saved,
	})
	report.FilesDiscovered = scan.Discovered
	report.Warnings = append(report.Warnings, scan.Warnings...)

	if err := e.persist(); err != nil {
		e.logger.Warn("state not persisted", zap.Error(err))
		report.Warnings = append(report.Warnings, err.Error())
	}
	if err := graph.Mirror(ctx, e.graph, e.store); err != nil {
		e.logger.Warn("graph mirror failed", zap.Error(err))
		report.Warnings = append(report.Warnings, err.Error())
	}

	misses := 0
	for _, t := range tasks {
		if t.Type != orchestrator.TaskCleanup {
			misses++
		}
	}
	e.statsMu.Lock()
	e.stats.Runs++
	e.stats.CacheHits += report.CacheHits
	e.stats.CacheMisses += misses
	e.stats.TimeSaved += saved
	e.statsMu.Unlock()
	e.metrics.AddCacheHits(report.CacheHits)
	e.metrics.SetTrackedFiles(e.detector.Len())
	return report, nil
}

func (e *Engine) detect(ctx context.Context, root string, changedFiles []string) (*change.Scan, error) {
	if changedFiles == nil {
		return e.detector.DetectChanges(ctx, root)
	}
	paths := make([]string, len(changedFiles))
	for i, p := range changedFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		paths[i] = filepath.Clean(p)
	}
	return e.detector.ProcessChangedFiles(ctx, paths)
}

// updateGraph refreshes the dependency sets of added and modified files.
// The first run also indexes unchanged files so impact is complete after a
// restart with restored hashes. Unparseable files are logged and keep
// their previous edges.
func (e *Engine) updateGraph(ctx context.Context, root string, scan *change.Scan) error {
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	for _, c := range scan.Changes {
		if c.Type != change.ChangeDeleted {
			add(c.Path)
		}
	}
	if !e.warm {
		for _, p := range scan.Unchanged {
			add(p)
		}
	}
	// Files importing a path that reappears were resolved without it and
	// must be re-extracted to get their edges back.
	for _, c := range scan.Changes {
		if c.Type != change.ChangeAdded {
			continue
		}
		for _, imp := range e.adoptOrphans(c.Path) {
			add(imp)
		}
		if e.warm && graph.IsGoPackageFile(c.Path) {
			for _, imp := range e.packageImporters(c.Path) {
				add(imp)
			}
		}
	}
	sort.Strings(paths)

	ex := e.extractorFor(root)
	deps := make([]map[string]struct{}, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.WorkerCount())
	for i, p := range paths {
		g.Go(func() error {
			d, err := ex.AnalyzeDependencies(gctx, p)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("dependency extraction failed", zap.String("path", p), zap.Error(err))
				return nil
			}
			deps[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("engine: extract dependencies: %w", err)
	}

	for i, p := range paths {
		if deps[i] == nil {
			e.graph.AddOrGetNode(p)
			continue
		}
		e.graph.UpdateDependencies(p, deps[i])
	}
	e.warm = true
	return nil
}

// packageImporters returns the importers of the Go package that path joins.
// A Go import resolves to every file of the package, so a new file needs
// the existing importers to pick it up.
func (e *Engine) packageImporters(path string) []string {
	dir := filepath.Dir(path)
	var out []string
	for _, p := range e.graph.Paths() {
		if p == path || filepath.Dir(p) != dir || !graph.IsGoPackageFile(p) {
			continue
		}
		out = append(out, e.graph.Dependents(p)...)
	}
	return out
}

// extractorFor returns the extractor resolving imports against root.
func (e *Engine) extractorFor(root string) *graph.Extractor {
	if ex, ok := e.extractors[root]; ok {
		return ex
	}
	resolver := graph.NewResolver(e.fsys, root, e.cfg.SearchRoots)
	ex := graph.NewExtractor(e.fsys, e.parser, resolver, e.logger)
	e.extractors[root] = ex
	return ex
}

// AssessImpact reports which files a change to paths would impact, without
// running an analysis.
func (e *Engine) AssessImpact(root string, paths []string) map[string]map[string]struct{} {
	abs := make([]string, len(paths))
	for i, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		abs[i] = filepath.Clean(p)
	}
	return e.graph.AnalyzeChangeImpact(abs, e.cfg.MaxImpactDepth)
}
