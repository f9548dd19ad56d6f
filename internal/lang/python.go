package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/crux/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py"},
		lang:       python.GetLanguage(),
		Definitions: map[string]model.SymbolKind{
			"function_definition": model.Function,
		},
		Calls:          map[string]bool{"call": true},
		DefinitionName: pythonDefinitionName,
		CallName:       pythonCallName,
	}
}

// pythonDefinitionName qualifies methods with their class ("MyClass.method").
func pythonDefinitionName(node *sitter.Node, source []byte) (string, model.SymbolKind) {
	name := fieldText(node, "name", source)
	if name == "" {
		return "", ""
	}
	if cls := pythonFindEnclosingClass(node); cls != nil {
		if clsName := fieldText(cls, "name", source); clsName != "" {
			return clsName + "." + name, model.Method
		}
	}
	return name, model.Function
}

func pythonFindEnclosingClass(funcNode *sitter.Node) *sitter.Node {
	parent := funcNode.Parent()
	if parent == nil {
		return nil
	}

	// Direct: func -> block -> class_definition
	if parent.Type() == "block" && parent.Parent() != nil && parent.Parent().Type() == "class_definition" {
		return parent.Parent()
	}

	// Decorated: func -> decorated_definition -> block -> class_definition
	if parent.Type() == "decorated_definition" {
		gp := parent.Parent()
		if gp != nil && gp.Type() == "block" && gp.Parent() != nil && gp.Parent().Type() == "class_definition" {
			return gp.Parent()
		}
	}

	return nil
}

// pythonCallName returns "f" for f() and "m" for obj.m().
func pythonCallName(node *sitter.Node, source []byte) string {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return NodeText(fn, source)
	case "attribute":
		return fieldText(fn, "attribute", source)
	}
	return ""
}
