package export

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dusk-indust/codesweep/internal/graph"
)

// GenerateMermaid produces a Mermaid graph TD diagram from a graph store.
// Files are grouped by directory; IMPORTS edges become arrows and
// high-impact files (priority 1) are highlighted. A non-empty root makes
// labels relative to it.
func GenerateMermaid(ctx context.Context, store graph.Store, root string) (string, error) {
	files, err := store.Files(ctx)
	if err != nil {
		return "", fmt.Errorf("get files: %w", err)
	}
	edges, err := store.AllEdges(ctx)
	if err != nil {
		return "", fmt.Errorf("get edges: %w", err)
	}

	// Mermaid IDs must be alphanumeric.
	nodeIDs := make(map[string]string)
	getID := func(key string) string {
		if id, ok := nodeIDs[key]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", len(nodeIDs))
		nodeIDs[key] = id
		return id
	}

	byDir := make(map[string][]graph.FileNode)
	for _, f := range files {
		dir := path.Dir(RelPath(root, f.Path))
		byDir[dir] = append(byDir[dir], f)
	}
	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var hot []string
	for _, dir := range dirs {
		members := byDir[dir]
		sort.Slice(members, func(i, j int) bool { return members[i].Path < members[j].Path })

		fmt.Fprintf(&sb, "  subgraph %s[\"%.40s\"]\n", getID(dir+"/"), dir)
		for _, f := range members {
			id := getID(f.Path)
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", id, shortPath(RelPath(root, f.Path)))
			if f.Priority == 1 {
				hot = append(hot, id)
			}
		}
		sb.WriteString("  end\n")
	}

	for _, e := range edges {
		if e.Kind != graph.EdgeKindImports {
			continue
		}
		fmt.Fprintf(&sb, "  %s --> %s\n", getID(e.SourceID), getID(e.TargetID))
	}

	if len(hot) > 0 {
		sb.WriteString("  classDef hot fill:#f96,stroke:#333\n")
		fmt.Fprintf(&sb, "  class %s hot\n", strings.Join(hot, ","))
	}
	return sb.String(), nil
}

// shortPath returns the last 2 path segments for readability.
func shortPath(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) <= 2 {
		return p
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
