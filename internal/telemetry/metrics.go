// Package telemetry holds the Prometheus collectors of one engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

// Metrics is a set of collectors registered on its own registry, so several
// engines can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	retries      prometheus.Counter
	cacheHits    prometheus.Counter
	fallbacks    prometheus.Counter
	trackedFiles prometheus.Gauge
}

var _ orchestrator.Observer = (*Metrics)(nil)

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codesweep_tasks_total",
			Help: "Analysis tasks finished, by type and status",
		}, []string{"type", "status"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codesweep_task_duration_seconds",
			Help:    "Duration of the final attempt of each task",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"type"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "codesweep_task_retries_total",
			Help: "Task retries scheduled after a failed attempt",
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "codesweep_cache_hits_total",
			Help: "Tracked files skipped because their content was unchanged",
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "codesweep_fallbacks_total",
			Help: "Runs that fell back to a full scan",
		}),
		trackedFiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "codesweep_tracked_files",
			Help: "Files in the change detector's hash table",
		}),
	}
}

func (m *Metrics) TaskFinished(task orchestrator.AnalysisTask, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.tasksTotal.WithLabelValues(task.Type.String(), status).Inc()
	m.taskDuration.WithLabelValues(task.Type.String()).Observe(d.Seconds())
}

func (m *Metrics) TaskRetried(orchestrator.AnalysisTask) {
	m.retries.Inc()
}

// AddCacheHits counts unchanged files of one run.
func (m *Metrics) AddCacheHits(n int) {
	m.cacheHits.Add(float64(n))
}

// Fallback counts one full-scan fallback.
func (m *Metrics) Fallback() {
	m.fallbacks.Inc()
}

// SetTrackedFiles records the size of the hash table.
func (m *Metrics) SetTrackedFiles(n int) {
	m.trackedFiles.Set(float64(n))
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
