package graph

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// rsImports reports use declarations and out-of-line module declarations.
// "mod db;" is reported as "self::db" so it resolves next to the declaring
// file.
type rsImports struct{}

func (rsImports) visit(node *tree_sitter.Node, source []byte) []string {
	switch node.Kind() {
	case "use_declaration":
		arg := node.ChildByFieldName("argument")
		if arg == nil {
			return nil
		}
		return []string{arg.Utf8Text(source)}

	case "mod_item":
		if node.ChildByFieldName("body") != nil {
			return nil // inline module
		}
		name := node.ChildByFieldName("name")
		if name == nil {
			return nil
		}
		return []string{"self::" + strings.TrimSpace(name.Utf8Text(source))}
	}
	return nil
}
