package graph

import (
	"context"
	"fmt"
)

// Mirror makes store reflect g: files no longer in g are removed, every node
// is upserted, then every node's imports are replaced.
func Mirror(ctx context.Context, g *DependencyGraph, store Store) error {
	nodes := g.Snapshot()
	live := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		live[n.Path] = true
	}

	existing, err := store.Files(ctx)
	if err != nil {
		return fmt.Errorf("mirror: list files: %w", err)
	}
	for _, f := range existing {
		if !live[f.Path] {
			if err := store.RemoveFile(ctx, f.Path); err != nil {
				return fmt.Errorf("mirror: remove %s: %w", f.Path, err)
			}
		}
	}

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn := FileNode{
			Path:       n.Path,
			Language:   LanguageForPath(n.Path),
			Priority:   n.Priority,
			EstimateMs: n.EstimatedAnalysisTime.Milliseconds(),
		}
		if err := store.UpsertFile(ctx, fn); err != nil {
			return fmt.Errorf("mirror: upsert %s: %w", n.Path, err)
		}
	}
	for _, n := range nodes {
		if err := store.SetImports(ctx, n.Path, sortedKeys(n.Dependencies)); err != nil {
			return fmt.Errorf("mirror: imports of %s: %w", n.Path, err)
		}
	}
	return nil
}
