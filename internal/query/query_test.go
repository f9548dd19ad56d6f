package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/store"
)

func seed(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.UpsertFunctions(ctx, []model.FunctionRecord{
		{ID: "a", Name: "ns::Alpha", Source: "void Alpha() { beta(); }"},
		{ID: "b", Name: "ns::beta", Source: "void beta() {}"},
	}))
	require.NoError(t, m.UpsertEdges(ctx, []model.CallEdge{
		{Caller: "a", Callee: "b"},
		{Caller: "a", Callee: "std::printf"},
	}))
	require.NoError(t, m.PutResult(ctx, "b", "beta does nothing"))
	return m
}

func TestFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := seed(t)

	e, err := Fetch(ctx, m, m, "a")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "ns::Alpha", e.Name)
	assert.Equal(t, []string{"b", "std::printf"}, e.Calls)
	assert.Nil(t, e.Summary, "unenriched function has no summary")

	e, err = Fetch(ctx, m, m, "b")
	require.NoError(t, err)
	require.NotNil(t, e.Summary)
	assert.Equal(t, "beta does nothing", *e.Summary)
	assert.Equal(t, []string{}, e.Calls)
}

func TestFetchUnknown(t *testing.T) {
	t.Parallel()
	m := seed(t)

	e, err := Fetch(context.Background(), m, m, "nope")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestFetchAll(t *testing.T) {
	t.Parallel()
	m := seed(t)

	entries, missing, err := FetchAll(context.Background(), m, m, []string{"b", "x", "a"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)
	assert.Equal(t, []string{"x"}, missing)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	recs := []model.FunctionRecord{
		{ID: "1", Name: "Server.Start"},
		{ID: "2", Name: "startup"},
		{ID: "3", Name: "Stop"},
	}
	got := Search(recs, "START")
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Empty(t, Search(recs, "zzz"))
	assert.Len(t, Search(recs, ""), 3)
}
