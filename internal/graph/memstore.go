package graph

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu      sync.RWMutex
	files   map[string]FileNode
	imports map[string]map[string]struct{} // source → targets
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		files:   make(map[string]FileNode),
		imports: make(map[string]map[string]struct{}),
	}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

func (m *MemStore) UpsertFile(_ context.Context, node FileNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[node.Path] = node
	return nil
}

func (m *MemStore) SetImports(_ context.Context, path string, targets []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, ok := m.files[t]; ok {
			set[t] = struct{}{}
		}
	}
	m.imports[path] = set
	return nil
}

func (m *MemStore) RemoveFile(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	delete(m.imports, path)
	for _, targets := range m.imports {
		delete(targets, path)
	}
	return nil
}

// GetFile returns the file node for the given path, or nil if not found.
func (m *MemStore) GetFile(_ context.Context, path string) (*FileNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// Files returns every file node sorted by path.
func (m *MemStore) Files(_ context.Context) ([]FileNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FileNode, 0, len(m.files))
	for _, p := range slices.Sorted(maps.Keys(m.files)) {
		out = append(out, m.files[p])
	}
	return out, nil
}

// AllEdges returns every IMPORTS edge sorted by source then target.
func (m *MemStore) AllEdges(_ context.Context) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var edges []Edge
	for _, src := range slices.Sorted(maps.Keys(m.imports)) {
		for _, dst := range slices.Sorted(maps.Keys(m.imports[src])) {
			edges = append(edges, Edge{SourceID: src, TargetID: dst, Kind: EdgeKindImports})
		}
	}
	return edges, nil
}

// GetDependencies performs a BFS from nodeID in the given direction, up to
// maxDepth hops. It returns one DependencyChain per reachable node.
func (m *MemStore) GetDependencies(_ context.Context, nodeID string, direction Direction, maxDepth int) ([]DependencyChain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if maxDepth <= 0 {
		return nil, nil
	}

	type bfsEntry struct {
		id   string
		path []string
	}

	visited := map[string]bool{nodeID: true}
	queue := []bfsEntry{{id: nodeID, path: []string{nodeID}}}
	var chains []DependencyChain

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var nextQueue []bfsEntry
		for _, entry := range queue {
			for _, nb := range m.neighbors(entry.id, direction) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				newPath := append(slices.Clone(entry.path), nb)
				chains = append(chains, DependencyChain{Nodes: newPath, Depth: len(newPath) - 1})
				nextQueue = append(nextQueue, bfsEntry{id: nb, path: newPath})
			}
		}
		queue = nextQueue
	}
	return chains, nil
}

// neighbors returns IDs one hop from id, sorted for deterministic chains.
func (m *MemStore) neighbors(id string, direction Direction) []string {
	var result []string
	switch direction {
	case DirectionUpstream:
		result = slices.Collect(maps.Keys(m.imports[id]))
	case DirectionDownstream:
		for src, targets := range m.imports {
			if _, ok := targets[id]; ok {
				result = append(result, src)
			}
		}
	}
	sort.Strings(result)
	return result
}

// Stats returns file and edge counts.
func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := 0
	for _, t := range m.imports {
		edges += len(t)
	}
	return &GraphStats{FileCount: len(m.files), EdgeCount: edges}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
