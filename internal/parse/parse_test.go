package parse

import (
	"context"
	"strings"
	"testing"

	"github.com/phobologic/crux/internal/lang"
	"github.com/phobologic/crux/internal/model"
)

func setup(t *testing.T, langName string) func(source string) []model.Tag {
	t.Helper()
	l := lang.Languages[langName]
	if l == nil {
		t.Fatalf("language %q not registered", langName)
	}
	ext := l.Extensions[0]
	return func(source string) []model.Tag {
		p := l.NewParser()
		tags, err := ExtractTags(context.Background(), l, p, []byte(source), "test"+ext)
		if err != nil {
			t.Fatalf("ExtractTags: %v", err)
		}
		return tags
	}
}

func names(tags []model.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out
}

func findRef(tags []model.Tag, name string) (model.Tag, bool) {
	for _, t := range References(tags) {
		if t.Name == name {
			return t, true
		}
	}
	return model.Tag{}, false
}

// --- Python tests ---

func TestPythonExtractFunction(t *testing.T) {
	t.Parallel()
	extract := setup(t, "python")

	tags := extract("def hello(name: str) -> None:\n    pass\n")
	defs := Definitions(tags)
	if len(defs) != 1 {
		t.Fatalf("expected 1 def, got %d", len(defs))
	}
	d := defs[0]
	if d.Name != "hello" {
		t.Errorf("name = %q, want hello", d.Name)
	}
	if d.SymbolKind != model.Function {
		t.Errorf("kind = %q, want function", d.SymbolKind)
	}
	if d.Line != 1 || d.EndLine != 2 {
		t.Errorf("lines = %d-%d, want 1-2", d.Line, d.EndLine)
	}
	if d.Source != "def hello(name: str) -> None:\n    pass" {
		t.Errorf("source = %q", d.Source)
	}
	if d.File != "test.py" {
		t.Errorf("file = %q", d.File)
	}
}

func TestPythonExtractMethod(t *testing.T) {
	t.Parallel()
	extract := setup(t, "python")

	source := `class MyClass:
    def my_method(self, x: int) -> str:
        return str(x)
`
	defs := Definitions(extract(source))
	if len(defs) != 1 {
		t.Fatalf("expected 1 def, got %v", names(defs))
	}
	if defs[0].Name != "MyClass.my_method" {
		t.Errorf("name = %q, want MyClass.my_method", defs[0].Name)
	}
	if defs[0].SymbolKind != model.Method {
		t.Errorf("kind = %q, want method", defs[0].SymbolKind)
	}
}

func TestPythonDecoratedMethod(t *testing.T) {
	t.Parallel()
	extract := setup(t, "python")

	source := `class Foo:
    @staticmethod
    def bar():
        pass
`
	defs := Definitions(extract(source))
	if len(defs) != 1 || defs[0].Name != "Foo.bar" {
		t.Fatalf("defs = %v, want [Foo.bar]", names(defs))
	}
}

func TestPythonCallReferences(t *testing.T) {
	t.Parallel()
	extract := setup(t, "python")

	source := `def helper():
    pass

def main():
    helper()
    obj.method()

setup()
`
	tags := extract(source)

	ref, ok := findRef(tags, "helper")
	if !ok {
		t.Fatal("missing helper reference")
	}
	if ref.Enclosing != "main" {
		t.Errorf("helper enclosing = %q, want main", ref.Enclosing)
	}
	if ref.Line != 5 {
		t.Errorf("helper line = %d, want 5", ref.Line)
	}

	ref, ok = findRef(tags, "method")
	if !ok {
		t.Fatal("missing attribute call reference")
	}
	if ref.Enclosing != "main" {
		t.Errorf("method enclosing = %q, want main", ref.Enclosing)
	}

	ref, ok = findRef(tags, "setup")
	if !ok {
		t.Fatal("missing top-level reference")
	}
	if ref.Enclosing != "" {
		t.Errorf("setup enclosing = %q, want empty", ref.Enclosing)
	}
}

func TestPythonNestedFunction(t *testing.T) {
	t.Parallel()
	extract := setup(t, "python")

	source := `def outer():
    def inner():
        leaf()
    inner()
`
	tags := extract(source)

	got := names(Definitions(tags))
	if len(got) != 2 || got[0] != "outer" || got[1] != "inner" {
		t.Fatalf("defs = %v, want [outer inner]", got)
	}
	if ref, _ := findRef(tags, "leaf"); ref.Enclosing != "inner" {
		t.Errorf("leaf enclosing = %q, want inner", ref.Enclosing)
	}
	if ref, _ := findRef(tags, "inner"); ref.Enclosing != "outer" {
		t.Errorf("inner enclosing = %q, want outer", ref.Enclosing)
	}
}

// --- Go tests ---

func TestGoExtractFunctionsAndMethods(t *testing.T) {
	t.Parallel()
	extract := setup(t, "go")

	source := `package main

func Start() {
	s := &Server{}
	s.Run()
}

func (s *Server) Run() {
	helper()
	fmt.Println("x")
}

func (p Point) Len() int { return 0 }
`
	tags := extract(source)
	defs := Definitions(tags)

	want := []struct {
		name string
		kind model.SymbolKind
		line int
	}{
		{"Start", model.Function, 3},
		{"Server.Run", model.Method, 8},
		{"Point.Len", model.Method, 13},
	}
	if len(defs) != len(want) {
		t.Fatalf("defs = %v", names(defs))
	}
	for i, w := range want {
		if defs[i].Name != w.name || defs[i].SymbolKind != w.kind || defs[i].Line != w.line {
			t.Errorf("def[%d] = %s/%s/%d, want %s/%s/%d",
				i, defs[i].Name, defs[i].SymbolKind, defs[i].Line, w.name, w.kind, w.line)
		}
	}
	if !strings.HasPrefix(defs[1].Source, "func (s *Server) Run()") {
		t.Errorf("source = %q", defs[1].Source)
	}

	for _, tc := range []struct{ ref, enclosing string }{
		{"Run", "Start"},
		{"helper", "Server.Run"},
		{"Println", "Server.Run"},
	} {
		ref, ok := findRef(tags, tc.ref)
		if !ok {
			t.Errorf("missing reference %s", tc.ref)
			continue
		}
		if ref.Enclosing != tc.enclosing {
			t.Errorf("%s enclosing = %q, want %q", tc.ref, ref.Enclosing, tc.enclosing)
		}
	}
}

func TestGoFunctionLiteralCallIgnored(t *testing.T) {
	t.Parallel()
	extract := setup(t, "go")

	source := `package main

func main() {
	func() {}()
}
`
	refs := References(extract(source))
	if len(refs) != 0 {
		t.Errorf("refs = %v, want none", names(refs))
	}
}

// --- Ruby tests ---

func TestRubyExtractMethods(t *testing.T) {
	t.Parallel()
	extract := setup(t, "ruby")

	source := `class Greeter
  def greet(name)
    obj.shout(name)
  end
end

def standalone
end
`
	tags := extract(source)
	defs := Definitions(tags)
	got := names(defs)
	if len(got) != 2 || got[0] != "Greeter.greet" || got[1] != "standalone" {
		t.Fatalf("defs = %v, want [Greeter.greet standalone]", got)
	}
	if defs[0].SymbolKind != model.Method || defs[1].SymbolKind != model.Function {
		t.Errorf("kinds = %s, %s", defs[0].SymbolKind, defs[1].SymbolKind)
	}
	if defs[0].Line != 2 || defs[0].EndLine != 4 {
		t.Errorf("greet lines = %d-%d, want 2-4", defs[0].Line, defs[0].EndLine)
	}

	ref, ok := findRef(tags, "shout")
	if !ok {
		t.Fatal("missing shout reference")
	}
	if ref.Enclosing != "Greeter.greet" {
		t.Errorf("shout enclosing = %q", ref.Enclosing)
	}
}

func TestExtractEmptySource(t *testing.T) {
	t.Parallel()
	extract := setup(t, "python")

	if tags := extract(""); tags != nil {
		t.Errorf("tags = %v, want nil", tags)
	}
}
