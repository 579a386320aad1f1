package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/config"
	"github.com/dusk-indust/codesweep/internal/lint"
	"github.com/dusk-indust/codesweep/internal/logging"
)

// cli carries the settings shared by every subcommand. Values resolve as
// defaults, then codesweep.yml, then CODESWEEP_* environment variables, then
// flags.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	return (&cli{v: viper.New()}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codesweep",
		Short:         "Incremental code-quality analysis",
		Long:          "codesweep re-analyzes only the files whose content changed since the last run, plus the files that depend on them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("project-root", ".", "path to the target project")
	pf.Int("workers", 0, "worker pool size (0 derives it from the CPU count)")
	pf.Int("max-retries", 3, "retries per failed task")
	pf.Duration("task-timeout", 30*time.Second, "timeout of one analysis attempt")
	pf.Bool("persist", false, "keep hashes, timings and the graph under the state directory")
	pf.String("state-dir", ".codesweep", "state directory, relative to the project root")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("verbose", false, "console logging at debug level and per-task progress")
	pf.Int("max-line-length", lint.DefaultMaxLineLength, "line-length limit of the built-in rules (0 disables it)")
	pf.String("metrics-addr", "", "serve Prometheus metrics at /metrics and progress events at /events on this address (e.g. :9464)")

	c.v.SetEnvPrefix("CODESWEEP")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	_ = c.v.BindPFlags(pf)

	root.AddCommand(
		c.analyzeCmd(),
		c.watchCmd(),
		c.serveCmd(),
		c.graphCmd(),
		c.initCmd(),
		versionCmd(),
	)
	return root
}

// projectRoot returns the absolute project root.
func (c *cli) projectRoot() (string, error) {
	root, err := filepath.Abs(c.v.GetString("project-root"))
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	return root, nil
}

// loadConfig reads codesweep.yml from root and applies explicitly set
// environment variables and flags on top.
func (c *cli) loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if c.v.IsSet("workers") {
		cfg.Workers = c.v.GetInt("workers")
	}
	if c.v.IsSet("max-retries") {
		cfg.MaxRetries = c.v.GetInt("max-retries")
	}
	if c.v.IsSet("task-timeout") {
		cfg.TaskTimeout = c.v.GetDuration("task-timeout")
	}
	if c.v.IsSet("persist") {
		cfg.Persist = c.v.GetBool("persist")
	}
	if c.v.IsSet("state-dir") {
		cfg.StateDir = c.v.GetString("state-dir")
	}
	if c.v.IsSet("log-level") {
		cfg.LogLevel = c.v.GetString("log-level")
	}
	if !filepath.IsAbs(cfg.StateDir) {
		cfg.StateDir = filepath.Join(root, cfg.StateDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) newLogger(cfg *config.Config) (*zap.Logger, error) {
	if c.v.GetBool("verbose") {
		return logging.NewDevelopment()
	}
	return logging.New(cfg.LogLevel)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
