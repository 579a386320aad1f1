package graph

import (
	"context"
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// importExtractor collects import specifiers from a parsed AST.
type importExtractor interface {
	// visit inspects one node and returns the specifiers it declares.
	visit(node *tree_sitter.Node, source []byte) []string
}

// TreeSitterParser implements Parser using tree-sitter grammars. A new
// tree-sitter parser is created per call, so concurrent ParseImports calls
// are safe.
type TreeSitterParser struct {
	languages  map[Language]*tree_sitter.Language
	extractors map[Language]importExtractor
}

var _ Parser = (*TreeSitterParser)(nil)

// NewTreeSitterParser creates a TreeSitterParser with Go, TypeScript, Python,
// and Rust grammars registered.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{
		languages: map[Language]*tree_sitter.Language{
			LangGo:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			LangPython:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			LangRust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
		},
		extractors: map[Language]importExtractor{
			LangGo:         goImports{},
			LangTypeScript: tsImports{},
			LangPython:     pyImports{},
			LangRust:       rsImports{},
		},
	}
}

// ParseImports parses source and returns its import specifiers in source
// order, without duplicates.
func (p *TreeSitterParser) ParseImports(ctx context.Context, path string, source []byte, lang Language) (*ParseResult, error) {
	tsLang, ok := p.languages[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	ext := p.extractors[lang]

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tsLang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter returned nil tree for %s", path)
	}
	defer tree.Close()

	cursor := tree.RootNode().Walk()
	defer cursor.Close()

	res := &ParseResult{Path: path, Language: lang}
	seen := make(map[string]bool)
	walkImports(cursor, source, ext, func(spec string) {
		if spec != "" && !seen[spec] {
			seen[spec] = true
			res.Imports = append(res.Imports, spec)
		}
	})
	return res, nil
}

// walkImports visits every node depth-first, reporting specifiers to emit.
func walkImports(cursor *tree_sitter.TreeCursor, source []byte, ext importExtractor, emit func(string)) {
	for _, spec := range ext.visit(cursor.Node(), source) {
		emit(spec)
	}
	if cursor.GotoFirstChild() {
		walkImports(cursor, source, ext, emit)
		for cursor.GotoNextSibling() {
			walkImports(cursor, source, ext, emit)
		}
		cursor.GotoParent()
	}
}

// SupportedLanguages returns the languages this parser can handle.
func (p *TreeSitterParser) SupportedLanguages() []Language {
	langs := make([]Language, 0, len(p.languages))
	for l := range p.languages {
		langs = append(langs, l)
	}
	return langs
}

// Close is a no-op because parsers are created per call.
func (p *TreeSitterParser) Close() error {
	return nil
}

// childOfKind returns the first direct child of node with the given kind.
func childOfKind(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}
