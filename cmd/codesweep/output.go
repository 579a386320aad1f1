package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/dusk-indust/codesweep/internal/engine"
	"github.com/dusk-indust/codesweep/internal/export"
)

// printSummary writes a one-line run summary, then failures and findings.
func printSummary(w io.Writer, r *engine.Report, root string) {
	status := color.GreenString("ok")
	if !r.Success {
		status = color.RedString("degraded")
	}
	kind := r.AnalysisType
	if kind == engine.AnalysisFullFallback {
		kind = color.YellowString(kind)
	}
	fmt.Fprintf(w, "%s %s: %d tasks, %d failed, %d cache hits, ~%s saved (%s)\n",
		status, kind, r.Total, r.Failed, r.CacheHits,
		r.EstimatedTimeSaved.Round(time.Millisecond), r.Duration.Round(time.Millisecond))

	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("!"), warn)
	}
	for _, d := range r.FailedTasks {
		fmt.Fprintf(w, "  %s %s: %s\n", color.RedString("✗"), export.RelPath(root, d.Path), d.Error)
	}
	for _, d := range r.Tasks {
		if len(d.ImpactScope) > 0 {
			fmt.Fprintf(w, "  %s %s impacts %d files\n", color.CyanString("→"), export.RelPath(root, d.Path), len(d.ImpactScope))
		}
		for _, f := range d.Findings {
			fmt.Fprintf(w, "  %s:%d [%s] %s\n", export.RelPath(root, d.Path), f.Line, f.Rule, f.Message)
		}
	}
}
