package graph

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// goImports reports the path of every import_spec.
type goImports struct{}

func (goImports) visit(node *tree_sitter.Node, source []byte) []string {
	if node.Kind() != "import_spec" {
		return nil
	}
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		pathNode = childOfKind(node, "interpreted_string_literal")
	}
	if pathNode == nil {
		return nil
	}
	return []string{strings.Trim(pathNode.Utf8Text(source), "\"`")}
}
