// Package store defines the persistence interfaces used by crux and the
// in-process implementations of them.
package store

import (
	"context"
	"errors"
	"io"

	"github.com/phobologic/crux/internal/model"
)

// ErrNotFound is returned by Lookup when no record has the requested ID.
var ErrNotFound = errors.New("function not found")

// RecordSource supplies the function records and call edges of a codebase.
type RecordSource interface {
	Functions(ctx context.Context) ([]model.FunctionRecord, error)
	Edges(ctx context.Context) ([]model.CallEdge, error)
}

// ResultStore persists one enrichment result per function ID.
// PutResult replaces any previous value and is durable once it returns.
type ResultStore interface {
	Result(ctx context.Context, id string) (text string, ok bool, err error)
	PutResult(ctx context.Context, id, text string) error
}

// Ingester loads extraction output. Functions are upserted by ID; edges
// have set semantics.
type Ingester interface {
	UpsertFunctions(ctx context.Context, functions []model.FunctionRecord) error
	UpsertEdges(ctx context.Context, edges []model.CallEdge) error
}

// Lookup answers point queries by function ID.
type Lookup interface {
	// Function returns ErrNotFound when id has no record.
	Function(ctx context.Context, id string) (model.FunctionRecord, error)
	// Callees returns every recorded callee of id, external ones included.
	Callees(ctx context.Context, id string) ([]string, error)
}

// Backend is the full set of operations a storage implementation provides.
type Backend interface {
	RecordSource
	ResultStore
	Ingester
	Lookup
	io.Closer
}
