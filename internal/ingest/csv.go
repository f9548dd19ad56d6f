package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/phobologic/crux/internal/logging"
	"github.com/phobologic/crux/internal/model"
)

// Column names of the definition CSV.
var defColumns = []string{
	"usr", "fully_qualified_name", "kind", "class",
	"visibility", "filename", "start_line", "end_line",
}

// Column names of the call CSV.
var callColumns = []string{"caller_usr", "callee_usr"}

// LoadDefCSV reads a definition CSV (header row required, extra columns
// ignored). Each record's source is the inclusive 1-based line range of
// its file resolved against root. A file that cannot be read is logged
// and yields empty source.
func LoadDefCSV(ctx context.Context, r io.Reader, root string) ([]model.FunctionRecord, error) {
	logger := logging.FromContext(ctx)

	rows, err := readCSV(r, defColumns)
	if err != nil {
		return nil, fmt.Errorf("reading definitions: %w", err)
	}

	files := newFileLines(root)
	records := make([]model.FunctionRecord, 0, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start, err := strconv.Atoi(row["start_line"])
		if err != nil {
			return nil, fmt.Errorf("row %d: start_line: %w", i+2, err)
		}
		end, err := strconv.Atoi(row["end_line"])
		if err != nil {
			return nil, fmt.Errorf("row %d: end_line: %w", i+2, err)
		}

		text, err := files.slice(row["filename"], start, end)
		if err != nil {
			logger.Warn("cannot read source", "usr", row["usr"], "file", row["filename"], "err", err)
		}

		records = append(records, model.FunctionRecord{
			ID:         row["usr"],
			Name:       row["fully_qualified_name"],
			Source:     text,
			Kind:       row["kind"],
			Class:      row["class"],
			Visibility: row["visibility"],
			File:       row["filename"],
			StartLine:  start,
			EndLine:    end,
		})
	}
	return records, nil
}

// LoadCallCSV reads a call CSV with caller_usr and callee_usr columns.
func LoadCallCSV(r io.Reader) ([]model.CallEdge, error) {
	rows, err := readCSV(r, callColumns)
	if err != nil {
		return nil, fmt.Errorf("reading calls: %w", err)
	}
	edges := make([]model.CallEdge, len(rows))
	for i, row := range rows {
		edges[i] = model.CallEdge{Caller: row["caller_usr"], Callee: row["callee_usr"]}
	}
	return edges, nil
}

// readCSV returns the data rows of r keyed by header name. Every name in
// required must be present in the header.
func readCSV(r io.Reader, required []string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(required))
		for _, name := range required {
			if i := index[name]; i < len(rec) {
				row[name] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fileLines caches the lines of files under root; definition CSVs list
// many functions per file.
type fileLines struct {
	root  string
	lines map[string][]string
	errs  map[string]error
}

func newFileLines(root string) *fileLines {
	return &fileLines{
		root:  root,
		lines: make(map[string][]string),
		errs:  make(map[string]error),
	}
}

// slice returns lines start..end (1-based, inclusive) joined by "\n".
// Out-of-range bounds are clamped to the file.
func (f *fileLines) slice(name string, start, end int) (string, error) {
	lines, err := f.load(name)
	if err != nil {
		return "", err
	}
	lo := max(start-1, 0)
	hi := min(end, len(lines))
	if lo >= hi {
		return "", nil
	}
	return strings.Join(lines[lo:hi], "\n"), nil
}

func (f *fileLines) load(name string) ([]string, error) {
	if lines, ok := f.lines[name]; ok {
		return lines, nil
	}
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.root, name))
	if err != nil {
		f.errs[name] = err
		return nil, err
	}
	lines := splitLines(string(data))
	f.lines[name] = lines
	return lines, nil
}

// splitLines splits on line endings without producing a trailing empty
// line for a final newline.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
