package graph

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// pyImports reports dotted module names. Relative imports keep their
// leading dots ("from ..models import X" yields "..models").
type pyImports struct{}

func (pyImports) visit(node *tree_sitter.Node, source []byte) []string {
	switch node.Kind() {
	case "import_statement":
		// import a.b, c as d
		var out []string
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			switch child.Kind() {
			case "dotted_name":
				out = append(out, child.Utf8Text(source))
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					out = append(out, name.Utf8Text(source))
				}
			}
		}
		return out

	case "import_from_statement":
		mod := node.ChildByFieldName("module_name")
		if mod == nil {
			mod = childOfKind(node, "dotted_name")
		}
		if mod == nil {
			return nil
		}
		return []string{mod.Utf8Text(source)}
	}
	return nil
}
