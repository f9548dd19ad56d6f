// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/crux/internal/query"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeComponents renders strongly connected components, callee-first, as
// one row per component. Members are space separated.
func EncodeComponents(comps [][]string) string {
	rows := make([][]*string, len(comps))
	for i, c := range comps {
		rows[i] = cells(strconv.Itoa(i), strconv.Itoa(len(c)), strings.Join(c, " "))
	}
	return formatTabular("components", []string{"index", "size", "members"}, rows)
}

// EncodeEntries renders fetched functions as three tables: functions
// (summary is null when not yet enriched), calls, and sources.
func EncodeEntries(entries []*query.Entry) string {
	var fnRows, callRows, srcRows [][]*string
	for _, e := range entries {
		fnRows = append(fnRows, []*string{&e.ID, &e.Name, e.Summary})
		for _, callee := range e.Calls {
			callRows = append(callRows, cells(e.ID, callee))
		}
		srcRows = append(srcRows, cells(e.ID, e.Source))
	}

	parts := []string{
		formatTabular("functions", []string{"id", "name", "summary"}, fnRows),
		formatTabular("calls", []string{"caller", "callee"}, callRows),
		formatTabular("sources", []string{"id", "source"}, srcRows),
	}
	return strings.Join(parts, "\n")
}

func cells(values ...string) []*string {
	out := make([]*string, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}

// formatTabular writes a TOON tabular array. A nil cell is written as null.
func formatTabular(name string, columns []string, rows [][]*string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			if cell == nil {
				encoded[i] = "null"
				continue
			}
			encoded[i] = encodeValue(*cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
