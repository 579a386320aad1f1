package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFile(t *testing.T) {
	dir := t.TempDir()
	body := `
maxTrackedFiles: 50
taskTimeout: 2s
searchRoots: [lib, third_party]
estimator:
  heuristicWeight: 0.5
  historyWeight: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codesweep.yaml"), []byte(body), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.MaxTrackedFiles)
	assert.Equal(t, 2*time.Second, cfg.TaskTimeout)
	assert.Equal(t, []string{"lib", "third_party"}, cfg.SearchRoots)
	assert.InDelta(t, 0.5, cfg.Estimator.HeuristicWeight, 1e-9)
	// Untouched fields keep their defaults.
	assert.Equal(t, 10, cfg.MaxImpactDepth)
	assert.InDelta(t, 10.0, cfg.Estimator.SourceMsPerKB, 1e-9)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codesweep.yml"), []byte("maxTrackedFiles: [oops"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cap", func(c *Config) { c.MaxTrackedFiles = 0 }},
		{"hash cache below cap", func(c *Config) { c.HashCacheSize = c.MaxTrackedFiles - 1 }},
		{"zero depth", func(c *Config) { c.MaxImpactDepth = 0 }},
		{"inverted worker range", func(c *Config) { c.MinWorkers, c.MaxWorkers = 8, 4 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero timeout", func(c *Config) { c.TaskTimeout = 0 }},
		{"negative weight", func(c *Config) { c.Estimator.HistoryWeight = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestWorkerCount_Clamped(t *testing.T) {
	cfg := Default()

	cfg.Workers = 1
	assert.Equal(t, 2, cfg.WorkerCount())

	cfg.Workers = 64
	assert.Equal(t, 16, cfg.WorkerCount())

	cfg.Workers = 5
	assert.Equal(t, 5, cfg.WorkerCount())

	cfg.Workers = 0
	n := cfg.WorkerCount()
	assert.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, n, 16)
}

func TestTrackedExtensions(t *testing.T) {
	cfg := &Config{
		SourceExtensions: []string{".go"},
		ConfigExtensions: []string{".yml"},
		ExtraExtensions:  []string{".md"},
	}
	assert.Equal(t, []string{".go", ".yml", ".md"}, cfg.TrackedExtensions())
}
