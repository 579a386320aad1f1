package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// defaultMCPAddr is where serve-mcp listens unless --addr says otherwise.
const defaultMCPAddr = "127.0.0.1:7420"

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// codesweepMCPEntry points MCP clients at a running serve-mcp.
var codesweepMCPEntry = json.RawMessage(`{
  "type": "http",
  "url": "http://` + defaultMCPAddr + `"
}`)

// configTemplate is the annotated codesweep.yml written by init. Omitted
// keys keep their defaults.
const configTemplate = `# codesweep configuration. Omitted keys use the defaults shown here.

# Directory names never descended into, in addition to VCS and editor dirs.
excludeDirs: [vendor, node_modules, dist, build, target, __pycache__]

# Extra roots for resolving non-relative imports.
# searchRoots: [shared, third_party]

maxTrackedFiles: 10000
maxImpactDepth: 10

# 0 derives the pool size from the CPU count, clamped to minWorkers..maxWorkers.
workers: 0
minWorkers: 2
maxWorkers: 16
taskTimeout: 30s
batchTimeout: 5m
maxRetries: 3
# Retry n waits retryBaseDelay * 2^(n-1).
retryBaseDelay: 1s

estimator:
  sourceMsPerKB: 10
  otherMsPerKB: 2
  baseMs: 5
  heuristicWeight: 0.3
  historyWeight: 0.7

# Keep hashes, timings and the graph between runs.
persist: false
stateDir: .codesweep
logLevel: info
`

func (c *cli) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write codesweep.yml and register the MCP server in .mcp.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := c.projectRoot()
			if err != nil {
				return err
			}
			return runInit(cmd.OutOrStdout(), root, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files and entries")
	return cmd
}

// runInit installs the configuration file and MCP entry into the target
// project directory.
func runInit(w io.Writer, root string, force bool) error {
	cfgPath := filepath.Join(root, "codesweep.yml")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		fmt.Fprintf(w, "  skipped %s (exists, use --force to overwrite)\n", dotRelative(root, cfgPath))
	} else {
		if err := os.WriteFile(cfgPath, []byte(configTemplate), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		fmt.Fprintf(w, "  created %s\n", dotRelative(root, cfgPath))
	}

	if err := mergeMCPConfig(w, filepath.Join(root, ".mcp.json"), force); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nSetup complete. Run 'codesweep serve-mcp' to start the MCP server.")
	return nil
}

// mergeMCPConfig creates or merges the codesweep entry into .mcp.json.
func mergeMCPConfig(w io.Writer, mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["codesweep"]; exists && !force {
		fmt.Fprintf(w, "  skipped .mcp.json codesweep entry (exists, use --force to overwrite)\n")
		return nil
	}

	cfg.MCPServers["codesweep"] = codesweepMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(w, "  %s .mcp.json with codesweep MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
