//go:build cgo

package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a database directory at
// dbPath, so the mirrored graph survives across runs.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	// KuzuDB creates the leaf directory itself.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS File(
		path STRING,
		language STRING,
		priority INT64,
		estimate_ms INT64,
		PRIMARY KEY(path)
	)`,
	`CREATE REL TABLE IF NOT EXISTS IMPORTS(FROM File TO File)`,
}

// InitSchema creates the tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

func (s *KuzuStore) UpsertFile(_ context.Context, node FileNode) error {
	return s.exec(
		`MERGE (f:File {path: $path})
		 ON CREATE SET f.language = $lang, f.priority = $prio, f.estimate_ms = $est
		 ON MATCH SET f.language = $lang, f.priority = $prio, f.estimate_ms = $est`,
		map[string]any{
			"path": node.Path,
			"lang": string(node.Language),
			"prio": int64(node.Priority),
			"est":  node.EstimateMs,
		},
	)
}

func (s *KuzuStore) SetImports(_ context.Context, path string, targets []string) error {
	if err := s.exec(
		"MATCH (a:File {path: $path})-[r:IMPORTS]->(:File) DELETE r",
		map[string]any{"path": path},
	); err != nil {
		return err
	}
	for _, dst := range targets {
		if err := s.exec(
			`MATCH (a:File {path: $src}), (b:File {path: $dst})
			 CREATE (a)-[:IMPORTS]->(b)`,
			map[string]any{"src": path, "dst": dst},
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *KuzuStore) RemoveFile(_ context.Context, path string) error {
	return s.exec(
		"MATCH (f:File {path: $path}) DETACH DELETE f",
		map[string]any{"path": path},
	)
}

func (s *KuzuStore) GetFile(_ context.Context, path string) (*FileNode, error) {
	rows, err := s.query(
		"MATCH (f:File {path: $path}) RETURN f.path, f.language, f.priority, f.estimate_ms",
		map[string]any{"path": path},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	f := rowToFile(rows[0])
	return &f, nil
}

func (s *KuzuStore) Files(_ context.Context) ([]FileNode, error) {
	rows, err := s.query(
		"MATCH (f:File) RETURN f.path, f.language, f.priority, f.estimate_ms ORDER BY f.path",
		nil,
	)
	if err != nil {
		return nil, err
	}
	out := make([]FileNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToFile(r))
	}
	return out, nil
}

func (s *KuzuStore) AllEdges(_ context.Context) ([]Edge, error) {
	rows, err := s.query(
		"MATCH (a:File)-[:IMPORTS]->(b:File) RETURN a.path, b.path ORDER BY a.path, b.path",
		nil,
	)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(rows))
	for _, r := range rows {
		edges = append(edges, Edge{SourceID: toString(r[0]), TargetID: toString(r[1]), Kind: EdgeKindImports})
	}
	return edges, nil
}

// GetDependencies walks IMPORTS edges breadth-first from nodeID, one query
// per frontier node.
func (s *KuzuStore) GetDependencies(_ context.Context, nodeID string, dir Direction, maxDepth int) ([]DependencyChain, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	type bfsEntry struct {
		path  []string
		depth int
	}
	visited := map[string]bool{nodeID: true}
	queue := []bfsEntry{{path: []string{nodeID}}}
	var chains []DependencyChain

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		neighbors, err := s.fileNeighbors(cur.path[len(cur.path)-1], dir)
		if err != nil {
			return nil, err
		}
		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			newPath := make([]string, len(cur.path)+1)
			copy(newPath, cur.path)
			newPath[len(cur.path)] = nb
			chains = append(chains, DependencyChain{Nodes: newPath, Depth: cur.depth + 1})
			queue = append(queue, bfsEntry{path: newPath, depth: cur.depth + 1})
		}
	}
	return chains, nil
}

// fileNeighbors returns files one IMPORTS hop from path.
func (s *KuzuStore) fileNeighbors(path string, dir Direction) ([]string, error) {
	var cypher string
	switch dir {
	case DirectionUpstream:
		cypher = "MATCH (a:File {path: $path})-[:IMPORTS]->(b:File) RETURN b.path ORDER BY b.path"
	case DirectionDownstream:
		cypher = "MATCH (a:File)-[:IMPORTS]->(b:File {path: $path}) RETURN a.path ORDER BY a.path"
	default:
		return nil, fmt.Errorf("kuzu: unknown direction: %s", dir)
	}
	rows, err := s.query(cypher, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, toString(r[0]))
	}
	return out, nil
}

func (s *KuzuStore) Stats(_ context.Context) (*GraphStats, error) {
	files, err := s.count("MATCH (n:File) RETURN count(n)")
	if err != nil {
		return nil, err
	}
	edges, err := s.count("MATCH ()-[r:IMPORTS]->() RETURN count(r)")
	if err != nil {
		return nil, err
	}
	return &GraphStats{FileCount: files, EdgeCount: edges}, nil
}

// ---------- Query helpers ----------

func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func (s *KuzuStore) count(cypher string) (int, error) {
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// rowToFile converts a (path, language, priority, estimate_ms) row.
func rowToFile(r []any) FileNode {
	return FileNode{
		Path:       toString(r[0]),
		Language:   Language(toString(r[1])),
		Priority:   toInt(r[2]),
		EstimateMs: int64(toInt(r[3])),
	}
}

// KuzuDB returns typed Go values; these coerce any to the concrete type.

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
