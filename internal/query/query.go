// Package query answers point lookups over an ingested and enriched store.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/store"
)

// Entry is everything known about one function.
type Entry struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Source  string   `json:"source"`
	Calls   []string `json:"calls"`
	Summary *string  `json:"summary"`
}

// Fetch returns the entry for id, or nil when id has no record. Summary is
// nil when the function has not been enriched.
func Fetch(ctx context.Context, lookup store.Lookup, results store.ResultStore, id string) (*Entry, error) {
	rec, err := lookup.Function(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", id, err)
	}

	calls, err := lookup.Callees(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up callees of %s: %w", id, err)
	}
	if calls == nil {
		calls = []string{}
	}

	e := &Entry{ID: rec.ID, Name: rec.Name, Source: rec.Source, Calls: calls}
	text, ok, err := results.Result(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading summary of %s: %w", id, err)
	}
	if ok {
		e.Summary = &text
	}
	return e, nil
}

// FetchAll fetches each id in order, skipping unknown IDs. It reports the
// IDs that had no record.
func FetchAll(ctx context.Context, lookup store.Lookup, results store.ResultStore, ids []string) ([]*Entry, []string, error) {
	var entries []*Entry
	var missing []string
	for _, id := range ids {
		e, err := Fetch(ctx, lookup, results, id)
		if err != nil {
			return nil, nil, err
		}
		if e == nil {
			missing = append(missing, id)
			continue
		}
		entries = append(entries, e)
	}
	return entries, missing, nil
}

// Search returns the records whose name contains substr, ignoring case,
// in their original order.
func Search(records []model.FunctionRecord, substr string) []model.FunctionRecord {
	lower := strings.ToLower(substr)
	var out []model.FunctionRecord
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Name), lower) {
			out = append(out, r)
		}
	}
	return out
}
