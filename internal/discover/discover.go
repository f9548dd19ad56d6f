// Package discover finds parseable source files in a repository.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/crux/internal/lang"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to repo root
	Language string
}

// Options narrows discovery.
type Options struct {
	// Languages limits results to the named languages. Empty means all.
	Languages []string

	// Exclude holds extra gitignore-style patterns matched against
	// repo-relative paths.
	Exclude []string

	// SkipTests drops files IsTestFile reports as tests.
	SkipTests bool
}

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	"build":         {},
	"dist":          {},
	"vendor":        {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	"egg-info":      {},
}

// Files discovers parseable source files under root, sorted by path.
// Inside a git work tree the tracked and untracked-but-not-ignored files
// are used; otherwise root's .gitignore is honoured when present.
func Files(ctx context.Context, root string, opts Options) ([]FileEntry, error) {
	langSet := make(map[string]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[l] = struct{}{}
	}
	gitFiles := gitLsFiles(ctx, root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}
	var excl *ignore.GitIgnore
	if len(opts.Exclude) > 0 {
		excl = ignore.CompileIgnoreLines(opts.Exclude...)
	}

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if excl != nil && excl.MatchesPath(rel) {
			return nil
		}
		if opts.SkipTests && IsTestFile(rel) {
			return nil
		}

		langName := lang.ForExtension(filepath.Ext(name))
		if langName == "" {
			return nil
		}

		if len(langSet) > 0 {
			if _, ok := langSet[langName]; !ok {
				return nil
			}
		}

		results = append(results, FileEntry{Path: rel, Language: langName})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

var testDirs = map[string]struct{}{
	"test":      {},
	"tests":     {},
	"spec":      {},
	"__tests__": {},
	"testdata":  {},
}

// IsTestFile reports whether a repo-relative path looks like test code,
// either by directory ("tests/", "spec/") or by file name ("_test.go",
// "test_*.py", "_spec.rb", ".test.js").
func IsTestFile(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := testDirs[dir]; ok {
			return true
		}
	}

	base := parts[len(parts)-1]
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	switch {
	case strings.HasSuffix(stem, "_test"), strings.HasSuffix(stem, "_spec"):
		return true
	case strings.HasPrefix(stem, "test_"):
		return true
	case strings.HasSuffix(stem, ".test"), strings.HasSuffix(stem, ".spec"):
		return true
	}
	return false
}

func gitLsFiles(ctx context.Context, root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
