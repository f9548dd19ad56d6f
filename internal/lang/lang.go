// Package lang provides a language registry mapping file extensions to
// tree-sitter grammars and the syntax-node shapes of their functions and
// calls.
package lang

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/crux/internal/model"
)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// Definitions maps syntax node types that define a function or method
	// to their default symbol kind.
	Definitions map[string]model.SymbolKind

	// Calls lists the syntax node types of call expressions.
	Calls map[string]bool

	// DefinitionName returns the qualified name of a definition node
	// (e.g. "Type.method") and its symbol kind. An empty name skips the node.
	DefinitionName func(node *sitter.Node, source []byte) (string, model.SymbolKind)

	// CallName returns the name of the function a call node invokes, or ""
	// when the callee is not a plain or selector name.
	CallName func(node *sitter.Node, source []byte) string
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// Names returns the registered language names.
func Names() []string {
	names := make([]string, 0, len(Languages))
	for name := range Languages {
		names = append(names, name)
	}
	return names
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// fieldText returns the text of node's named field, or "".
func fieldText(node *sitter.Node, field string, source []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return NodeText(child, source)
}

// firstChildOfType returns node's first direct child of type typ, or nil.
func firstChildOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == typ {
			return child
		}
	}
	return nil
}
