package graph

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// tsImports reports the module source of import statements and re-exports
// ("export { x } from './y'").
type tsImports struct{}

func (tsImports) visit(node *tree_sitter.Node, source []byte) []string {
	switch node.Kind() {
	case "import_statement", "export_statement":
	default:
		return nil
	}
	src := node.ChildByFieldName("source")
	if src == nil {
		return nil
	}
	return []string{strings.Trim(src.Utf8Text(source), "\"'`")}
}
