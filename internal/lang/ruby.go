package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/phobologic/crux/internal/model"
)

func init() {
	Languages["ruby"] = &Language{
		Name:       "ruby",
		Extensions: []string{".rb"},
		lang:       ruby.GetLanguage(),
		Definitions: map[string]model.SymbolKind{
			"method":           model.Method,
			"singleton_method": model.Method,
		},
		Calls:          map[string]bool{"call": true, "method_call": true},
		DefinitionName: rubyDefinitionName,
		CallName:       rubyCallName,
	}
}

// rubyDefinitionName returns "Class.method" for methods inside a class or
// module and the bare name for top-level methods.
func rubyDefinitionName(node *sitter.Node, source []byte) (string, model.SymbolKind) {
	name := fieldText(node, "name", source)
	if name == "" {
		return "", ""
	}
	if cls := rubyFindMethodClass(node, source); cls != "" {
		return cls + "." + name, model.Method
	}
	return name, model.Function
}

// rubyFindMethodClass walks the parent chain looking for a class or module node.
func rubyFindMethodClass(funcNode *sitter.Node, source []byte) string {
	node := funcNode.Parent()
	for node != nil {
		if node.Type() == "class" || node.Type() == "module" {
			return rubyClassName(node, source)
		}
		node = node.Parent()
	}
	return ""
}

// rubyClassName extracts the name from a class or module node.
func rubyClassName(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "constant" || child.Type() == "scope_resolution" {
			return NodeText(child, source)
		}
	}
	return ""
}

// rubyCallName returns the method name of a call node (foo(), obj.foo).
// Older grammars wrap receiver calls in method_call; the inner call node
// reports those.
func rubyCallName(node *sitter.Node, source []byte) string {
	method := node.ChildByFieldName("method")
	if method == nil || method.Type() == "call" {
		return ""
	}
	return NodeText(method, source)
}
