// Package enrich defines the enrichment function contract and its
// implementations: a deterministic mock, LLM-backed enrichers and
// decorators for retry, rate limiting and timeouts.
package enrich

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("enrich: empty response")

// CalleeResult is the already-computed result of one function the
// enriched function calls.
type CalleeResult struct {
	Name   string
	Result string
}

// Request is everything an enricher gets to see about one function.
// Callees are in call order and never include members of the function's
// own cycle.
type Request struct {
	ID      string
	Name    string
	Source  string
	Callees []CalleeResult
}

// Enricher produces one opaque result for a function.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (string, error)
}

// Func adapts an ordinary function to the Enricher interface.
type Func func(ctx context.Context, req Request) (string, error)

// Enrich calls f.
func (f Func) Enrich(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
