// Package storetest holds the behaviour every store.Backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/store"
)

// Run exercises a fresh, empty backend returned by open. Each subtest gets
// its own backend.
func Run(t *testing.T, open func(t *testing.T) store.Backend) {
	t.Helper()

	t.Run("Empty", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		fns, err := b.Functions(ctx)
		require.NoError(t, err)
		assert.Empty(t, fns)

		edges, err := b.Edges(ctx)
		require.NoError(t, err)
		assert.Empty(t, edges)

		_, ok, err := b.Result(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UpsertFunctions", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		require.NoError(t, b.UpsertFunctions(ctx, []model.FunctionRecord{
			{ID: "c:1", Name: "alpha", Source: "int alpha() {}", Kind: "function", File: "a.c", StartLine: 1, EndLine: 1},
			{ID: "c:2", Name: "beta", Source: "int beta() {}"},
		}))
		require.NoError(t, b.UpsertFunctions(ctx, []model.FunctionRecord{
			{ID: "c:1", Name: "alpha", Source: "int alpha() { return 1; }", Kind: "function", File: "a.c", StartLine: 1, EndLine: 3},
		}))

		fns, err := b.Functions(ctx)
		require.NoError(t, err)
		require.Len(t, fns, 2)

		f, err := b.Function(ctx, "c:1")
		require.NoError(t, err)
		assert.Equal(t, "alpha", f.Name)
		assert.Equal(t, "int alpha() { return 1; }", f.Source)
		assert.Equal(t, "a.c", f.File)
		assert.Equal(t, 3, f.EndLine)

		_, err = b.Function(ctx, "nope")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("UpsertEdges", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		require.NoError(t, b.UpsertFunctions(ctx, []model.FunctionRecord{{ID: "a"}, {ID: "b"}}))
		require.NoError(t, b.UpsertEdges(ctx, []model.CallEdge{
			{Caller: "a", Callee: "b"},
			{Caller: "a", Callee: "ext:printf"},
		}))
		require.NoError(t, b.UpsertEdges(ctx, []model.CallEdge{
			{Caller: "a", Callee: "b"},
		}))

		edges, err := b.Edges(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []model.CallEdge{
			{Caller: "a", Callee: "b"},
			{Caller: "a", Callee: "ext:printf"},
		}, edges)

		callees, err := b.Callees(ctx, "a")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"b", "ext:printf"}, callees)

		callees, err = b.Callees(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, callees)
	})

	t.Run("Results", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		require.NoError(t, b.PutResult(ctx, "a", "first"))
		text, ok, err := b.Result(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "first", text)

		require.NoError(t, b.PutResult(ctx, "a", "second"))
		text, ok, err = b.Result(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "second", text)

		require.NoError(t, b.PutResult(ctx, "empty", ""))
		text, ok, err = b.Result(ctx, "empty")
		require.NoError(t, err)
		assert.True(t, ok, "an empty result is still a result")
		assert.Empty(t, text)
	})
}
