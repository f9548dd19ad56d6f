// Package model defines core data structures for crux.
package model

// FunctionRecord is one in-scope function definition.
// ID is an opaque, globally unique symbol identifier.
type FunctionRecord struct {
	ID     string
	Name   string
	Source string

	// Provenance, filled in by ingestion when known.
	Kind       string
	Class      string
	Visibility string
	File       string
	StartLine  int
	EndLine    int
}

// CallEdge says Caller calls Callee. Callee may name a function that has no
// record (an external reference).
type CallEdge struct {
	Caller string
	Callee string
}

// TagKind indicates whether a tag is a definition or a reference.
type TagKind string

const (
	Definition TagKind = "def"
	Reference  TagKind = "ref"
)

// SymbolKind indicates the syntactic kind of a symbol.
type SymbolKind string

const (
	Function SymbolKind = "function"
	Method   SymbolKind = "method"
)

// Tag represents a single symbol occurrence extracted from source code.
type Tag struct {
	Name       string
	Kind       TagKind
	SymbolKind SymbolKind
	Line       int
	EndLine    int
	File       string

	// Enclosing is the qualified name of the definition containing a
	// reference. Empty for top-level references.
	Enclosing string

	// Source is the full text of a definition. Empty for references.
	Source string
}

// FileInfo holds metadata and extracted tags for a single source file.
type FileInfo struct {
	Path     string
	Language string
	Tags     []Tag
}
