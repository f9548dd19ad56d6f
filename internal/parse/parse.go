// Package parse extracts function definitions and call references from
// source files using tree-sitter.
package parse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/crux/internal/lang"
	"github.com/phobologic/crux/internal/model"
)

type frame struct {
	node      *sitter.Node
	enclosing string
}

// ExtractTags parses a source file and returns its definition and
// reference tags in document order. The parser must be created for l.
// filePath is used only for Tag.File and should be the repo-relative path.
//
// Definition tags carry the qualified name and the full definition text.
// Reference tags carry the called name and the qualified name of the
// innermost definition containing the call.
func ExtractTags(ctx context.Context, l *lang.Language, parser *sitter.Parser, source []byte, filePath string) ([]model.Tag, error) {
	if len(source) == 0 {
		return nil, nil
	}

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	var tags []model.Tag

	// Pre-order walk with an explicit stack; deeply nested expressions
	// must not exhaust the goroutine stack.
	stack := []frame{{node: tree.RootNode()}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, enclosing := f.node, f.enclosing

		if _, ok := l.Definitions[node.Type()]; ok {
			if name, kind := l.DefinitionName(node, source); name != "" {
				tags = append(tags, model.Tag{
					Name:       name,
					Kind:       model.Definition,
					SymbolKind: kind,
					Line:       int(node.StartPoint().Row) + 1,
					EndLine:    int(node.EndPoint().Row) + 1,
					File:       filePath,
					Source:     lang.NodeText(node, source),
				})
				enclosing = name
			}
		} else if l.Calls[node.Type()] {
			if name := l.CallName(node, source); name != "" {
				tags = append(tags, model.Tag{
					Name:       name,
					Kind:       model.Reference,
					SymbolKind: model.Function,
					Line:       int(node.StartPoint().Row) + 1,
					EndLine:    int(node.EndPoint().Row) + 1,
					File:       filePath,
					Enclosing:  enclosing,
				})
			}
		}

		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: node.NamedChild(i), enclosing: enclosing})
		}
	}

	return tags, nil
}

// Definitions returns only the definition tags.
func Definitions(tags []model.Tag) []model.Tag {
	return filter(tags, model.Definition)
}

// References returns only the reference tags.
func References(tags []model.Tag) []model.Tag {
	return filter(tags, model.Reference)
}

func filter(tags []model.Tag, kind model.TagKind) []model.Tag {
	var out []model.Tag
	for _, t := range tags {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}
