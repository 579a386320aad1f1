package graph

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

// DefaultMaxDepth bounds impact propagation when callers pass 0.
const DefaultMaxDepth = 10

// Node is a snapshot of one file in the dependency graph. Its sets are
// copies; mutating them does not affect the graph.
type Node struct {
	Path         string              `json:"path"`
	Dependencies map[string]struct{} `json:"-"`
	Dependents   map[string]struct{} `json:"-"`
	LastModified time.Time           `json:"lastModified"`
	// Priority is 1 (high) to 3 (low); 0 until first scheduled.
	Priority              int           `json:"priority"`
	EstimatedAnalysisTime time.Duration `json:"estimatedAnalysisTime"`
}

type node struct {
	deps         map[string]struct{}
	dependents   map[string]struct{}
	lastModified time.Time
	priority     int
	estimate     time.Duration
}

func newNode() *node {
	return &node{deps: map[string]struct{}{}, dependents: map[string]struct{}{}}
}

// DependencyGraph holds bidirectional import edges between files. For every
// node N and every M in N's dependents, N is in M's dependencies, and the
// converse; every mutation preserves this. One graph-wide lock guards all
// state.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[string]*node
	now   func() time.Time
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{nodes: make(map[string]*node), now: time.Now}
}

// getOrCreate must be called with mu held for writing.
func (g *DependencyGraph) getOrCreate(path string) *node {
	n, ok := g.nodes[path]
	if !ok {
		n = newNode()
		g.nodes[path] = n
	}
	return n
}

func (g *DependencyGraph) snapshot(path string, n *node) Node {
	return Node{
		Path:                  path,
		Dependencies:          maps.Clone(n.deps),
		Dependents:            maps.Clone(n.dependents),
		LastModified:          n.lastModified,
		Priority:              n.priority,
		EstimatedAnalysisTime: n.estimate,
	}
}

// AddOrGetNode returns the node for path, creating it if needed.
func (g *DependencyGraph) AddOrGetNode(path string) Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot(path, g.getOrCreate(path))
}

// Node returns the node for path without creating it.
func (g *DependencyGraph) Node(path string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[path]
	if !ok {
		return Node{}, false
	}
	return g.snapshot(path, n), true
}

// UpdateDependencies replaces path's dependency set with deps, moving path
// out of dropped neighbors' dependents and into new neighbors'. Self-edges
// are ignored.
func (g *DependencyGraph) UpdateDependencies(path string, deps map[string]struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.getOrCreate(path)
	for old := range n.deps {
		if _, keep := deps[old]; !keep {
			if m, ok := g.nodes[old]; ok {
				delete(m.dependents, path)
			}
			delete(n.deps, old)
		}
	}
	for dep := range deps {
		if dep == path {
			continue
		}
		if _, had := n.deps[dep]; had {
			continue
		}
		n.deps[dep] = struct{}{}
		g.getOrCreate(dep).dependents[path] = struct{}{}
	}
	n.lastModified = g.now()
}

// RemoveNode deletes path, first removing it from every neighbor's opposite
// set. It reports whether the node existed.
func (g *DependencyGraph) RemoveNode(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[path]
	if !ok {
		return false
	}
	for dep := range n.deps {
		if m, ok := g.nodes[dep]; ok {
			delete(m.dependents, path)
		}
	}
	for dependent := range n.dependents {
		if m, ok := g.nodes[dependent]; ok {
			delete(m.deps, path)
		}
	}
	delete(g.nodes, path)
	return true
}

// AnalyzeChangeImpact walks dependents breadth-first from each changed path,
// at most maxDepth hops (DefaultMaxDepth when maxDepth <= 0). Each origin has
// its own visited set, so results of different origins may overlap. An origin
// never appears in its own result; origins unknown to the graph map to an
// empty set.
func (g *DependencyGraph) AnalyzeChangeImpact(changed []string, maxDepth int) map[string]map[string]struct{} {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	impact := make(map[string]map[string]struct{}, len(changed))
	for _, origin := range changed {
		impacted := make(map[string]struct{})
		visited := map[string]bool{origin: true}
		frontier := []string{origin}
		for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
			var next []string
			for _, p := range frontier {
				n, ok := g.nodes[p]
				if !ok {
					continue
				}
				for dependent := range n.dependents {
					if visited[dependent] {
						continue
					}
					visited[dependent] = true
					impacted[dependent] = struct{}{}
					next = append(next, dependent)
				}
			}
			frontier = next
		}
		impact[origin] = impacted
	}
	return impact
}

// PriorityOrder returns paths sorted by descending degree (dependencies plus
// dependents). The sort is stable: equal-degree paths keep input order.
func (g *DependencyGraph) PriorityOrder(paths []string) []string {
	g.mu.RLock()
	degree := make(map[string]int, len(paths))
	for _, p := range paths {
		if n, ok := g.nodes[p]; ok {
			degree[p] = len(n.deps) + len(n.dependents)
		}
	}
	g.mu.RUnlock()

	out := slices.Clone(paths)
	sort.SliceStable(out, func(i, j int) bool {
		return degree[out[i]] > degree[out[j]]
	})
	return out
}

// SetSchedule records the latest scheduled priority and estimate of path.
// Unknown paths are ignored.
func (g *DependencyGraph) SetSchedule(path string, priority int, estimate time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[path]; ok {
		n.priority = priority
		n.estimate = estimate
	}
}

// Dependencies returns the sorted dependencies of path.
func (g *DependencyGraph) Dependencies(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[path]; ok {
		return sortedKeys(n.deps)
	}
	return nil
}

// Dependents returns the sorted dependents of path.
func (g *DependencyGraph) Dependents(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[path]; ok {
		return sortedKeys(n.dependents)
	}
	return nil
}

// Paths returns every node path, sorted.
func (g *DependencyGraph) Paths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.nodes))
}

// Len returns the node count.
func (g *DependencyGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Edges returns every import edge, sorted by source then target.
func (g *DependencyGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var edges []Edge
	for src, n := range g.nodes {
		for dst := range n.deps {
			edges = append(edges, Edge{SourceID: src, TargetID: dst, Kind: EdgeKindImports})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		return edges[i].TargetID < edges[j].TargetID
	})
	return edges
}

// Snapshot returns copies of every node, sorted by path.
func (g *DependencyGraph) Snapshot() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, p := range slices.Sorted(maps.Keys(g.nodes)) {
		out = append(out, g.snapshot(p, g.nodes[p]))
	}
	return out
}

// CheckSymmetry verifies that dependencies and dependents mirror each other
// and that no edge points at a missing node.
func (g *DependencyGraph) CheckSymmetry() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for p, n := range g.nodes {
		for dep := range n.deps {
			m, ok := g.nodes[dep]
			if !ok {
				return fmt.Errorf("graph: %s depends on missing node %s", p, dep)
			}
			if _, ok := m.dependents[p]; !ok {
				return fmt.Errorf("graph: %s depends on %s but is not its dependent", p, dep)
			}
		}
		for dependent := range n.dependents {
			m, ok := g.nodes[dependent]
			if !ok {
				return fmt.Errorf("graph: %s has missing dependent %s", p, dependent)
			}
			if _, ok := m.deps[p]; !ok {
				return fmt.Errorf("graph: %s lists dependent %s that does not depend on it", p, dependent)
			}
		}
	}
	return nil
}

func sortedKeys(s map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(s))
}
