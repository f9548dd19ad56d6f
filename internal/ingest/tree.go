// Package ingest turns extraction output into function records and call
// edges: either by parsing a source tree with tree-sitter or by reading the
// definition and call CSV files produced by an external indexer.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/crux/internal/discover"
	"github.com/phobologic/crux/internal/graph"
	"github.com/phobologic/crux/internal/lang"
	"github.com/phobologic/crux/internal/logging"
	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/parse"
)

// DefaultMaxFileSize is the largest file FromTree parses.
const DefaultMaxFileSize = 1_000_000 // 1 MB

// externalPrefix marks callee IDs that name no parsed definition.
const externalPrefix = "ext:"

// TreeOptions configures FromTree.
type TreeOptions struct {
	Languages []string
	Exclude   []string
	SkipTests bool

	// MaxFileSize skips larger files. Zero means DefaultMaxFileSize.
	MaxFileSize int64

	// Workers bounds parse concurrency. Zero means GOMAXPROCS.
	Workers int
}

// Result is the output of an ingestion.
type Result struct {
	Functions []model.FunctionRecord
	Edges     []model.CallEdge
	Files     int
}

// FunctionID builds the record ID of a parsed definition.
func FunctionID(language, path, qualified string) string {
	return language + ":" + path + ":" + qualified
}

// ExternalID builds the callee ID of a call that resolved to no definition.
func ExternalID(name string) string {
	return externalPrefix + name
}

// FromTree discovers, parses and links every supported source file under
// root. Files that cannot be read are logged and skipped.
func FromTree(ctx context.Context, root string, opts TreeOptions) (*Result, error) {
	logger := logging.FromContext(ctx)

	files, err := discover.Files(ctx, root, discover.Options{
		Languages: opts.Languages,
		Exclude:   opts.Exclude,
		SkipTests: opts.SkipTests,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	files = filterBySize(ctx, root, files, maxSize)

	fileInfos, err := parseFilesConcurrent(ctx, root, files, opts.Workers)
	if err != nil {
		return nil, err
	}
	logger.Debug("parsed source tree", "root", root, "files", len(fileInfos))

	langOf := make(map[string]string, len(fileInfos))
	for _, fi := range fileInfos {
		langOf[fi.Path] = fi.Language
	}
	idOf := func(file string, tag model.Tag) string {
		return FunctionID(langOf[file], file, tag.Name)
	}

	res := &Result{Files: len(fileInfos)}
	seen := make(map[string]struct{})
	for _, fi := range fileInfos {
		for _, tag := range parse.Definitions(fi.Tags) {
			id := FunctionID(fi.Language, fi.Path, tag.Name)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			res.Functions = append(res.Functions, recordFromTag(id, tag))
		}
	}
	res.Edges = graph.BuildCallEdges(fileInfos, idOf, ExternalID)

	return res, nil
}

func recordFromTag(id string, tag model.Tag) model.FunctionRecord {
	rec := model.FunctionRecord{
		ID:        id,
		Name:      tag.Name,
		Source:    tag.Source,
		Kind:      string(tag.SymbolKind),
		File:      tag.File,
		StartLine: tag.Line,
		EndLine:   tag.EndLine,
	}
	if tag.SymbolKind == model.Method {
		if i := strings.LastIndex(tag.Name, "."); i > 0 {
			rec.Class = tag.Name[:i]
		}
	}
	return rec
}

func filterBySize(ctx context.Context, root string, files []discover.FileEntry, maxSize int64) []discover.FileEntry {
	logger := logging.FromContext(ctx)
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > maxSize {
			logger.Warn("skipping large file", "path", f.Path, "bytes", fi.Size(), "limit", maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

type parserPair struct {
	lang   *lang.Language
	parser *sitter.Parser
}

func parseFilesConcurrent(ctx context.Context, root string, files []discover.FileEntry, workers int) ([]model.FileInfo, error) {
	type result struct {
		index int
		info  model.FileInfo
	}

	logger := logging.FromContext(ctx)

	numWorkers := workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parsers := make(map[string]*parserPair)

			for idx := range work {
				if ctx.Err() != nil {
					continue
				}
				f := files[idx]
				pp, ok := parsers[f.Language]
				if !ok {
					l := lang.Languages[f.Language]
					pp = &parserPair{lang: l, parser: l.NewParser()}
					parsers[f.Language] = pp
				}

				source, err := os.ReadFile(filepath.Join(root, f.Path))
				if err != nil {
					logger.Warn("failed to read source file", "path", f.Path, "err", err)
					continue
				}

				tags, err := parse.ExtractTags(ctx, pp.lang, pp.parser, source, f.Path)
				if err != nil {
					logger.Warn("failed to parse source file", "path", f.Path, "err", err)
					continue
				}
				results <- result{
					index: idx,
					info: model.FileInfo{
						Path:     f.Path,
						Language: f.Language,
						Tags:     tags,
					},
				}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	indexed := make([]model.FileInfo, len(files))
	valid := make([]bool, len(files))
	for r := range results {
		indexed[r.index] = r.info
		valid[r.index] = true
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fileInfos []model.FileInfo
	for i, v := range valid {
		if v {
			fileInfos = append(fileInfos, indexed[i])
		}
	}

	return fileInfos, nil
}
