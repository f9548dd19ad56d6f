package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/crux/internal/config"
	"github.com/phobologic/crux/internal/logging"
	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/query"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// createSampleIndex writes a small indexer output: three functions in a
// chain (top -> mid -> leaf) plus a call to a library function.
func createSampleIndex(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "src/f.cpp", `int leaf() { return 1; }
int mid() { return leaf(); }
int top() { return mid() + printf("x"); }
`)
	writeTestFile(t, dir, "def.csv", `usr,fully_qualified_name,kind,class,visibility,filename,start_line,end_line
u:leaf,leaf,FunctionDecl,,,src/f.cpp,1,1
u:mid,mid,FunctionDecl,,,src/f.cpp,2,2
u:top,top,FunctionDecl,,,src/f.cpp,3,3
`)
	writeTestFile(t, dir, "call.csv", `caller_usr,callee_usr
u:mid,u:leaf
u:top,u:mid
u:top,c:@F@printf
`)
	return dir
}

// runCrux runs the CLI with an isolated config file.
func runCrux(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "--config", filepath.Join(dir, "missing.yaml"), "--log-level", "error"}, args[1:]...)
	err := run(full, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func loadSample(t *testing.T) (dir, db string) {
	t.Helper()
	dir = createSampleIndex(t)
	db = filepath.Join(dir, "crux.db")
	out, stderr, err := runCrux(t, dir, "load", db,
		"--def", filepath.Join(dir, "def.csv"),
		"--root", dir,
		"--call", filepath.Join(dir, "call.csv"))
	if err != nil {
		t.Fatalf("load: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(out, "3 rows -> functions") || !strings.Contains(out, "3 rows -> calls") {
		t.Fatalf("load output: %q", out)
	}
	return dir, db
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "crux") || !strings.Contains(stdout.String(), version) {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"frobnicate"}, &stdout, &stderr); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestLoadRequiresInput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	db := filepath.Join(dir, "crux.db")

	_, _, err := runCrux(t, dir, "load", db)
	if err == nil || !strings.Contains(err.Error(), "at least one of") {
		t.Errorf("err = %v", err)
	}

	_, _, err = runCrux(t, dir, "load", db, "--def", "def.csv")
	if err == nil || !strings.Contains(err.Error(), "--root is required") {
		t.Errorf("err = %v", err)
	}
}

func TestTopo(t *testing.T) {
	t.Parallel()
	dir, db := loadSample(t)

	out, stderr, err := runCrux(t, dir, "topo", db)
	if err != nil {
		t.Fatalf("topo: %v\nstderr: %s", err, stderr)
	}
	var comps [][]string
	if err := json.Unmarshal([]byte(out), &comps); err != nil {
		t.Fatalf("topo output is not JSON: %v\n%s", err, out)
	}
	want := [][]string{{"u:leaf"}, {"u:mid"}, {"u:top"}}
	if len(comps) != len(want) {
		t.Fatalf("comps = %v, want %v", comps, want)
	}
	for i := range want {
		if len(comps[i]) != 1 || comps[i][0] != want[i][0] {
			t.Errorf("comp %d = %v, want %v", i, comps[i], want[i])
		}
	}

	out, _, err = runCrux(t, dir, "topo", db, "--names", "--format", "toon")
	if err != nil {
		t.Fatalf("topo toon: %v", err)
	}
	if !strings.HasPrefix(out, "components[3]{index,size,members}:\n  0,1,leaf\n") {
		t.Errorf("toon output:\n%s", out)
	}
}

func TestTopoBadFormat(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, _, err := runCrux(t, dir, "topo", filepath.Join(dir, "crux.db"), "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("err = %v", err)
	}
}

func TestSummarizeResumesAndFetch(t *testing.T) {
	t.Parallel()
	dir, db := loadSample(t)

	out, stderr, err := runCrux(t, dir, "summarize", db)
	if err != nil {
		t.Fatalf("summarize: %v\nstderr: %s", err, stderr)
	}
	for _, line := range []string{
		"[1/3] summarized: leaf\n",
		"[2/3] summarized: mid\n",
		"[3/3] summarized: top\n",
	} {
		if !strings.Contains(stderr, line) {
			t.Errorf("stderr missing %q:\n%s", line, stderr)
		}
	}
	if !strings.Contains(out, "3 functions in 3 components: 3 summarized, 0 skipped, 0 failed") {
		t.Errorf("report line: %q", out)
	}

	// A second run finds every summary in place.
	out, stderr, err = runCrux(t, dir, "summarize", db)
	if err != nil {
		t.Fatalf("second summarize: %v", err)
	}
	if !strings.Contains(stderr, "[1/3] skip (already summarized): leaf\n") {
		t.Errorf("stderr:\n%s", stderr)
	}
	if !strings.Contains(out, "0 summarized, 3 skipped") {
		t.Errorf("report line: %q", out)
	}

	// --force redoes them.
	out, _, err = runCrux(t, dir, "summarize", db, "--force", "--workers", "2")
	if err != nil {
		t.Fatalf("forced summarize: %v", err)
	}
	if !strings.Contains(out, "3 summarized, 0 skipped") {
		t.Errorf("report line: %q", out)
	}

	out, stderr, err = runCrux(t, dir, "fetch", db, "u:top")
	if err != nil {
		t.Fatalf("fetch: %v\nstderr: %s", err, stderr)
	}
	var entries []query.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("fetch output is not JSON: %v\n%s", err, out)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	e := entries[0]
	if e.Name != "top" || e.Source != `int top() { return mid() + printf("x"); }` {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Calls) != 2 {
		t.Errorf("calls = %v, want u:mid and c:@F@printf", e.Calls)
	}
	if e.Summary == nil || !strings.HasPrefix(*e.Summary, "top is a great function") {
		t.Errorf("summary = %v", e.Summary)
	}
}

func TestFetchByNameAndMissing(t *testing.T) {
	t.Parallel()
	dir, db := loadSample(t)

	out, _, err := runCrux(t, dir, "fetch", db, "--name", "MID", "--format", "toon")
	if err != nil {
		t.Fatalf("fetch --name: %v", err)
	}
	if !strings.Contains(out, "functions[1]{id,name,summary}:\n  \"u:mid\",mid,null") {
		t.Errorf("toon output:\n%s", out)
	}

	out, stderr, err := runCrux(t, dir, "fetch", db, "u:leaf", "u:nope")
	if err == nil {
		t.Fatal("expected error for unknown ID")
	}
	if !strings.Contains(stderr, "warning: function not found: u:nope") {
		t.Errorf("stderr:\n%s", stderr)
	}
	if !strings.Contains(out, `"u:leaf"`) {
		t.Errorf("known IDs should still be printed:\n%s", out)
	}
}

func TestSummarizeUnknownProvider(t *testing.T) {
	t.Parallel()
	dir, db := loadSample(t)

	_, _, err := runCrux(t, dir, "summarize", db, "--provider", "bogus")
	if !errors.Is(err, config.ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestExtractAndTopo(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTestFile(t, src, "models.py", `def helper():
    return 1

def main():
    return helper()
`)
	db := "badger:" + filepath.Join(dir, "db")

	out, stderr, err := runCrux(t, dir, "extract", db, src)
	if err != nil {
		t.Fatalf("extract: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(out, "1 files: 2 functions, 1 calls") {
		t.Errorf("extract output: %q", out)
	}

	out, _, err = runCrux(t, dir, "topo", db, "--names")
	if err != nil {
		t.Fatalf("topo: %v", err)
	}
	var comps [][]string
	if err := json.Unmarshal([]byte(out), &comps); err != nil {
		t.Fatalf("topo output: %v\n%s", err, out)
	}
	if len(comps) != 2 || comps[0][0] != "helper" || comps[1][0] != "main" {
		t.Errorf("comps = %v", comps)
	}
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "readme.txt", "nothing here")
	db := filepath.Join(dir, "crux.db")

	_, _, err := runCrux(t, dir, "extract", db, dir)
	if err == nil || !strings.Contains(err.Error(), "no parseable files") {
		t.Errorf("err = %v", err)
	}

	_, _, err = runCrux(t, dir, "extract", db, dir, "-l", "cobol")
	if err == nil || !strings.Contains(err.Error(), "unsupported language") {
		t.Errorf("err = %v", err)
	}

	_, _, err = runCrux(t, dir, "extract", db, filepath.Join(dir, "readme.txt"))
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenStoreRouting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	logger := logging.Discard()

	for _, dsn := range []string{
		"memory:",
		filepath.Join(dir, "a.db"),
		"sqlite:" + filepath.Join(dir, "b.db"),
		"badger:" + filepath.Join(dir, "c"),
	} {
		b, err := openStore(ctx, dsn, logger)
		if err != nil {
			t.Fatalf("openStore(%q): %v", dsn, err)
		}
		if err := b.UpsertFunctions(ctx, []model.FunctionRecord{{ID: "x", Name: "x"}}); err != nil {
			t.Errorf("%s: upsert: %v", dsn, err)
		}
		if _, err := b.Function(ctx, "x"); err != nil {
			t.Errorf("%s: lookup: %v", dsn, err)
		}
		if err := b.Close(); err != nil {
			t.Errorf("%s: close: %v", dsn, err)
		}
	}
}
