package graph

import "context"

// ParseResult holds the raw import specifiers found in one file.
type ParseResult struct {
	Path     string   `json:"path"`
	Language Language `json:"language"`
	// Imports are unresolved specifiers as written in the source
	// ("./util", "github.com/x/y/pkg", "..models", "crate::db").
	Imports []string `json:"imports"`
}

// Parser extracts import statements from source files.
// Implementations: TreeSitterParser (production), stub parsers in tests.
type Parser interface {
	// ParseImports extracts the import specifiers of a single file.
	ParseImports(ctx context.Context, path string, source []byte, lang Language) (*ParseResult, error)

	// SupportedLanguages returns the languages this parser can handle.
	SupportedLanguages() []Language

	// Close releases parser resources.
	Close() error
}
