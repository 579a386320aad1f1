package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// FileNames are the config file names probed by Load, in order.
var FileNames = []string{"codesweep.yml", "codesweep.yaml"}

// Config holds project-level settings loaded from codesweep.yml.
type Config struct {
	SourceExtensions []string `yaml:"sourceExtensions,omitempty" mapstructure:"sourceExtensions"`
	ConfigExtensions []string `yaml:"configExtensions,omitempty" mapstructure:"configExtensions"`
	ExtraExtensions  []string `yaml:"extraExtensions,omitempty" mapstructure:"extraExtensions"`
	ExcludeDirs      []string `yaml:"excludeDirs,omitempty" mapstructure:"excludeDirs"`
	// SearchRoots are tried after relative and project-root resolution.
	// Relative entries are joined to the project root.
	SearchRoots []string `yaml:"searchRoots,omitempty" mapstructure:"searchRoots"`

	MaxTrackedFiles   int `yaml:"maxTrackedFiles,omitempty" mapstructure:"maxTrackedFiles"`
	HashCacheSize     int `yaml:"hashCacheSize,omitempty" mapstructure:"hashCacheSize"`
	ChangeHistorySize int `yaml:"changeHistorySize,omitempty" mapstructure:"changeHistorySize"`
	TimingHistorySize int `yaml:"timingHistorySize,omitempty" mapstructure:"timingHistorySize"`
	MaxImpactDepth    int `yaml:"maxImpactDepth,omitempty" mapstructure:"maxImpactDepth"`

	Workers        int           `yaml:"workers,omitempty" mapstructure:"workers"`
	MinWorkers     int           `yaml:"minWorkers,omitempty" mapstructure:"minWorkers"`
	MaxWorkers     int           `yaml:"maxWorkers,omitempty" mapstructure:"maxWorkers"`
	TaskTimeout    time.Duration `yaml:"taskTimeout,omitempty" mapstructure:"taskTimeout"`
	BatchTimeout   time.Duration `yaml:"batchTimeout,omitempty" mapstructure:"batchTimeout"`
	MaxRetries     int           `yaml:"maxRetries,omitempty" mapstructure:"maxRetries"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay,omitempty" mapstructure:"retryBaseDelay"`

	Estimator Estimator `yaml:"estimator,omitempty" mapstructure:"estimator"`

	StateDir string `yaml:"stateDir,omitempty" mapstructure:"stateDir"`
	Persist  bool   `yaml:"persist,omitempty" mapstructure:"persist"`
	LogLevel string `yaml:"logLevel,omitempty" mapstructure:"logLevel"`
}

// Estimator holds the tuning constants of the task time estimator.
// The heuristic is BaseMs + sizeKB*PerKB; when a measured duration exists the
// result is HeuristicWeight*heuristic + HistoryWeight*measured.
type Estimator struct {
	SourceMsPerKB   float64 `yaml:"sourceMsPerKB,omitempty" mapstructure:"sourceMsPerKB"`
	OtherMsPerKB    float64 `yaml:"otherMsPerKB,omitempty" mapstructure:"otherMsPerKB"`
	BaseMs          float64 `yaml:"baseMs,omitempty" mapstructure:"baseMs"`
	HeuristicWeight float64 `yaml:"heuristicWeight,omitempty" mapstructure:"heuristicWeight"`
	HistoryWeight   float64 `yaml:"historyWeight,omitempty" mapstructure:"historyWeight"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		SourceExtensions: []string{
			".go", ".py", ".ts", ".tsx", ".js", ".jsx", ".rs",
			".java", ".c", ".h", ".cpp", ".hpp", ".cs", ".rb",
		},
		ConfigExtensions: []string{".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".xml"},
		ExtraExtensions:  []string{".md", ".sql", ".sh"},
		ExcludeDirs:      []string{"vendor", "node_modules", "dist", "build", "target", "__pycache__"},

		MaxTrackedFiles:   10000,
		HashCacheSize:     50000,
		ChangeHistorySize: 1000,
		TimingHistorySize: 10000,
		MaxImpactDepth:    10,

		MinWorkers:     2,
		MaxWorkers:     16,
		TaskTimeout:    30 * time.Second,
		BatchTimeout:   5 * time.Minute,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,

		Estimator: Estimator{
			SourceMsPerKB:   10,
			OtherMsPerKB:    2,
			BaseMs:          5,
			HeuristicWeight: 0.3,
			HistoryWeight:   0.7,
		},

		StateDir: ".codesweep",
		LogLevel: "info",
	}
}

// Load attempts to read codesweep.yml or codesweep.yaml from the given
// directory and overlays it on Default. Returns the defaults (not an error)
// if no config file exists.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxTrackedFiles <= 0:
		return fmt.Errorf("%w: maxTrackedFiles must be positive", ErrInvalidConfig)
	case c.HashCacheSize < c.MaxTrackedFiles:
		return fmt.Errorf("%w: hashCacheSize %d is below maxTrackedFiles %d", ErrInvalidConfig, c.HashCacheSize, c.MaxTrackedFiles)
	case c.MaxImpactDepth <= 0:
		return fmt.Errorf("%w: maxImpactDepth must be positive", ErrInvalidConfig)
	case c.MinWorkers <= 0 || c.MaxWorkers < c.MinWorkers:
		return fmt.Errorf("%w: worker range %d..%d", ErrInvalidConfig, c.MinWorkers, c.MaxWorkers)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: maxRetries must not be negative", ErrInvalidConfig)
	case c.TaskTimeout <= 0 || c.BatchTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.Estimator.HeuristicWeight < 0 || c.Estimator.HistoryWeight < 0:
		return fmt.Errorf("%w: estimator weights must not be negative", ErrInvalidConfig)
	}
	return nil
}

// WorkerCount returns the configured pool size, or one derived from the
// available CPUs, clamped to [MinWorkers, MaxWorkers].
func (c *Config) WorkerCount() int {
	n := c.Workers
	if n == 0 {
		n = runtime.NumCPU()
	}
	return max(c.MinWorkers, min(c.MaxWorkers, n))
}

// TrackedExtensions is the union of source, config and extra extensions.
func (c *Config) TrackedExtensions() []string {
	out := make([]string, 0, len(c.SourceExtensions)+len(c.ConfigExtensions)+len(c.ExtraExtensions))
	out = append(out, c.SourceExtensions...)
	out = append(out, c.ConfigExtensions...)
	return append(out, c.ExtraExtensions...)
}
