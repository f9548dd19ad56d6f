package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/phobologic/crux/internal/model"
)

func init() {
	Languages["go"] = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		lang:       golang.GetLanguage(),
		Definitions: map[string]model.SymbolKind{
			"function_declaration": model.Function,
			"method_declaration":   model.Method,
		},
		Calls:          map[string]bool{"call_expression": true},
		DefinitionName: goDefinitionName,
		CallName:       goCallName,
	}
}

func goDefinitionName(node *sitter.Node, source []byte) (string, model.SymbolKind) {
	name := fieldText(node, "name", source)
	if name == "" {
		return "", ""
	}
	if node.Type() != "method_declaration" {
		return name, model.Function
	}
	if recv := goFindReceiverType(node, source); recv != "" {
		return recv + "." + name, model.Method
	}
	return name, model.Method
}

// goFindReceiverType extracts the receiver type name from a method_declaration node.
// Navigates: method_declaration → parameter_list (receiver) → parameter_declaration → type.
func goFindReceiverType(node *sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	param := firstChildOfType(recv, "parameter_declaration")
	if param == nil {
		return ""
	}
	return goExtractTypeName(param, source)
}

// goExtractTypeName extracts the type name from a parameter_declaration,
// unwrapping pointer_type and generic_type if present.
func goExtractTypeName(param *sitter.Node, source []byte) string {
	for i := 0; i < int(param.ChildCount()); i++ {
		child := param.Child(i)
		switch child.Type() {
		case "type_identifier":
			return NodeText(child, source)
		case "pointer_type", "generic_type":
			return goExtractTypeName(child, source)
		}
	}
	return ""
}

// goCallName returns "f" for f(), "m" for x.m() and "" for anything else
// (function literals, index expressions).
func goCallName(node *sitter.Node, source []byte) string {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return NodeText(fn, source)
	case "selector_expression":
		return fieldText(fn, "field", source)
	}
	return ""
}
