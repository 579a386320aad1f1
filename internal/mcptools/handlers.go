package mcptools

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/codesweep/internal/engine"
	"github.com/dusk-indust/codesweep/internal/export"
	"github.com/dusk-indust/codesweep/internal/graph"
)

// AnalysisService exposes an engine to MCP tool handlers. Paths in inputs
// may be relative to root; paths in outputs are relative to it.
type AnalysisService struct {
	engine *engine.Engine
	root   string
}

// NewAnalysisService creates an AnalysisService over eng for the project at
// root.
func NewAnalysisService(eng *engine.Engine, root string) (*AnalysisService, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	return &AnalysisService{engine: eng, root: abs}, nil
}

// rootFor returns the input root, or the service root when it is empty.
func (s *AnalysisService) rootFor(input string) (string, error) {
	if input == "" {
		return s.root, nil
	}
	info, err := os.Stat(input)
	if err != nil {
		return "", fmt.Errorf("cannot access root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root is not a directory: %s", input)
	}
	return filepath.Abs(input)
}

// AnalyzeIncremental runs one incremental analysis and returns its report.
func (s *AnalysisService) AnalyzeIncremental(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeInput,
) (*mcp.CallToolResult, AnalyzeOutput, error) {
	root, err := s.rootFor(input.Root)
	if err != nil {
		return nil, AnalyzeOutput{}, err
	}
	var changed []string
	if len(input.ChangedFiles) > 0 {
		changed = input.ChangedFiles
	}

	report, err := s.engine.Analyze(ctx, root, changed)
	if err != nil {
		return nil, AnalyzeOutput{}, fmt.Errorf("analyze: %w", err)
	}
	return nil, AnalyzeOutput{Report: export.NewReportView(report, root)}, nil
}

// AssessImpact reports the files a change to the given files would impact,
// from the graph built by previous analyses.
func (s *AnalysisService) AssessImpact(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input AssessImpactInput,
) (*mcp.CallToolResult, AssessImpactOutput, error) {
	if len(input.ChangedFiles) == 0 {
		return nil, AssessImpactOutput{}, fmt.Errorf("changedFiles is required")
	}
	root, err := s.rootFor(input.Root)
	if err != nil {
		return nil, AssessImpactOutput{}, err
	}

	impact := s.engine.AssessImpact(root, input.ChangedFiles)
	out := AssessImpactOutput{Impact: make([]ImpactEntry, 0, len(impact))}
	all := make(map[string]struct{})
	for _, file := range slices.Sorted(maps.Keys(impact)) {
		entry := ImpactEntry{File: export.RelPath(root, file), Impacted: []string{}}
		for _, p := range slices.Sorted(maps.Keys(impact[file])) {
			entry.Impacted = append(entry.Impacted, export.RelPath(root, p))
			all[p] = struct{}{}
		}
		out.Impact = append(out.Impact, entry)
	}
	out.TotalImpacted = len(all)
	return nil, out, nil
}

// GetDependencies traverses the mirrored dependency graph from a file.
func (s *AnalysisService) GetDependencies(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetDependenciesInput,
) (*mcp.CallToolResult, GetDependenciesOutput, error) {
	if input.NodeID == "" {
		return nil, GetDependenciesOutput{}, fmt.Errorf("nodeId is required")
	}
	node := input.NodeID
	if !filepath.IsAbs(node) {
		node = filepath.Join(s.root, node)
	}

	direction := graph.DirectionDownstream
	if strings.EqualFold(input.Direction, "upstream") {
		direction = graph.DirectionUpstream
	}

	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}

	chains, err := s.engine.Store().GetDependencies(ctx, node, direction, maxDepth)
	if err != nil {
		return nil, GetDependenciesOutput{}, fmt.Errorf("get dependencies: %w", err)
	}
	for i := range chains {
		for j, p := range chains[i].Nodes {
			chains[i].Nodes[j] = export.RelPath(s.root, p)
		}
	}
	return nil, GetDependenciesOutput{Chains: chains}, nil
}

// EngineStats returns cumulative cache statistics and the graph size.
func (s *AnalysisService) EngineStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ EngineStatsInput,
) (*mcp.CallToolResult, EngineStatsOutput, error) {
	gs, err := s.engine.Store().Stats(ctx)
	if err != nil {
		return nil, EngineStatsOutput{}, fmt.Errorf("stats: %w", err)
	}
	return nil, EngineStatsOutput{
		Stats: export.NewStatsView(s.engine.Stats()),
		Graph: *gs,
	}, nil
}

// RecentChanges returns the newest change records retained by the engine.
func (s *AnalysisService) RecentChanges(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input RecentChangesInput,
) (*mcp.CallToolResult, RecentChangesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	out := RecentChangesOutput{Changes: []ChangeEntry{}}
	for _, rec := range s.engine.RecentChanges(limit) {
		out.Changes = append(out.Changes, ChangeEntry{
			Path:      export.RelPath(s.root, rec.Path),
			Type:      rec.Type.String(),
			Size:      rec.Size,
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
