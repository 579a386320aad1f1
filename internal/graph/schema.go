package graph

import (
	"path/filepath"
	"strings"
)

// Language identifies a grammar used for import extraction.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
)

// SupportedLanguages are the languages with import extraction.
var SupportedLanguages = []Language{LangGo, LangTypeScript, LangPython, LangRust}

// extToLanguage maps file extensions to Language. JavaScript is parsed with
// the TypeScript grammar.
var extToLanguage = map[string]Language{
	".go":  LangGo,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".js":  LangTypeScript,
	".jsx": LangTypeScript,
	".mjs": LangTypeScript,
	".py":  LangPython,
	".rs":  LangRust,
}

// LanguageForPath returns the language of path, or "" when imports of that
// file type are not extracted.
func LanguageForPath(path string) Language {
	return extToLanguage[strings.ToLower(filepath.Ext(path))]
}

// EdgeKind classifies relationships between files.
type EdgeKind string

// EdgeKindImports is the only relationship the engine tracks.
const EdgeKindImports EdgeKind = "IMPORTS"

// FileNode represents a file in the mirrored graph store.
type FileNode struct {
	Path     string   `json:"path"`
	Language Language `json:"language,omitempty"`
	Priority int      `json:"priority"`
	// EstimateMs is the last scheduled analysis estimate.
	EstimateMs int64 `json:"estimateMs"`
}

// Edge is a directed import: SourceID imports TargetID.
type Edge struct {
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
	Kind     EdgeKind `json:"kind"`
}

// GraphStats summarizes a graph.
type GraphStats struct {
	FileCount int `json:"fileCount"`
	EdgeCount int `json:"edgeCount"`
}

// DependencyChain is an ordered sequence of files forming a dependency path.
type DependencyChain struct {
	Nodes []string `json:"nodes"`
	Depth int      `json:"depth"`
}

// Direction controls dependency traversal direction.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"   // what does this depend on?
	DirectionDownstream Direction = "downstream" // what depends on this?
)
