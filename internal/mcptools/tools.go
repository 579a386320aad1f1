package mcptools

import (
	"github.com/dusk-indust/codesweep/internal/export"
	"github.com/dusk-indust/codesweep/internal/graph"
)

// --- MCP Tool Input Types ---
// The MCP Go SDK generates the JSON schema of each tool from these structs.

// AnalyzeInput is the input for the analyze_incremental MCP tool.
type AnalyzeInput struct {
	Root         string   `json:"root,omitempty" jsonschema:"project root to analyze (default: the server's root)"`
	ChangedFiles []string `json:"changedFiles,omitempty" jsonschema:"limit change detection to these paths, absolute or relative to root (default: scan the whole tree)"`
}

// AnalyzeOutput is the result of the analyze_incremental MCP tool.
type AnalyzeOutput struct {
	Report export.ReportView `json:"report"`
}

// AssessImpactInput is the input for the assess_impact MCP tool.
type AssessImpactInput struct {
	Root         string   `json:"root,omitempty" jsonschema:"project root the paths are relative to (default: the server's root)"`
	ChangedFiles []string `json:"changedFiles" jsonschema:"list of file paths that will be modified"`
}

// ImpactEntry lists the files impacted by one changed file.
type ImpactEntry struct {
	File     string   `json:"file"`
	Impacted []string `json:"impacted"`
}

// AssessImpactOutput is the result of the assess_impact MCP tool.
type AssessImpactOutput struct {
	Impact        []ImpactEntry `json:"impact"`
	TotalImpacted int           `json:"totalImpacted"`
}

// GetDependenciesInput is the input for the get_dependencies MCP tool.
type GetDependenciesInput struct {
	NodeID    string `json:"nodeId" jsonschema:"file path, absolute or relative to the server's root"`
	Direction string `json:"direction,omitempty" jsonschema:"upstream (what it depends on) or downstream (what depends on it). Default: downstream"`
	MaxDepth  int    `json:"maxDepth,omitempty" jsonschema:"maximum traversal depth (default: 5)"`
}

// GetDependenciesOutput is the result of the get_dependencies MCP tool.
type GetDependenciesOutput struct {
	Chains []graph.DependencyChain `json:"chains"`
}

// EngineStatsInput is the input for the engine_stats MCP tool.
type EngineStatsInput struct{}

// EngineStatsOutput is the result of the engine_stats MCP tool.
type EngineStatsOutput struct {
	Stats export.StatsView `json:"stats"`
	Graph graph.GraphStats `json:"graph"`
}

// RecentChangesInput is the input for the recent_changes MCP tool.
type RecentChangesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of records to return, newest last (default: 20)"`
}

// ChangeEntry is one detected file change.
type ChangeEntry struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	Timestamp string `json:"timestamp"`
}

// RecentChangesOutput is the result of the recent_changes MCP tool.
type RecentChangesOutput struct {
	Changes []ChangeEntry `json:"changes"`
}
