package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

func TestMetrics_TaskCounters(t *testing.T) {
	m := NewMetrics()
	full := orchestrator.AnalysisTask{Type: orchestrator.TaskFullAnalysis}
	cleanup := orchestrator.AnalysisTask{Type: orchestrator.TaskCleanup}

	m.TaskFinished(full, true, 10*time.Millisecond)
	m.TaskFinished(full, false, 20*time.Millisecond)
	m.TaskFinished(cleanup, true, time.Millisecond)
	m.TaskRetried(full)
	m.TaskRetried(full)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("full_analysis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("full_analysis", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("cleanup", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 2, testutil.CollectAndCount(m.taskDuration))
}

func TestMetrics_EngineGauges(t *testing.T) {
	m := NewMetrics()
	m.AddCacheHits(3)
	m.AddCacheHits(2)
	m.Fallback()
	m.SetTrackedFiles(42)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.trackedFiles))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two engines in one process must not collide on registration.
	a, b := NewMetrics(), NewMetrics()
	a.Fallback()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fallbacks))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.fallbacks))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SetTrackedFiles(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "codesweep_tracked_files 7")
}
