package graph

import (
	"context"
	"io"
)

// Store mirrors the dependency graph into a queryable backend.
// Implementations: KuzuStore (persistent, cgo), MemStore (default, tests).
type Store interface {
	io.Closer

	// InitSchema is called once before any data is written.
	InitSchema(ctx context.Context) error

	// UpsertFile creates or updates a file node.
	UpsertFile(ctx context.Context, node FileNode) error
	// SetImports replaces the outgoing IMPORTS edges of path. Targets must
	// already exist as file nodes.
	SetImports(ctx context.Context, path string, targets []string) error
	// RemoveFile deletes a file node and every edge touching it.
	RemoveFile(ctx context.Context, path string) error

	GetFile(ctx context.Context, path string) (*FileNode, error)
	Files(ctx context.Context) ([]FileNode, error)
	AllEdges(ctx context.Context) ([]Edge, error)

	// GetDependencies walks up to maxDepth hops from nodeID. Upstream follows
	// imports, downstream follows importers.
	GetDependencies(ctx context.Context, nodeID string, direction Direction, maxDepth int) ([]DependencyChain, error)

	Stats(ctx context.Context) (*GraphStats, error)
}
