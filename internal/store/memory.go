package store

import (
	"context"
	"sync"

	"github.com/phobologic/crux/internal/model"
)

// Memory is a Backend held entirely in process memory. Records and edges
// keep their first-insertion order.
type Memory struct {
	mu        sync.RWMutex
	order     []string
	functions map[string]model.FunctionRecord
	edges     []model.CallEdge
	edgeSet   map[model.CallEdge]struct{}
	results   map[string]string
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		functions: make(map[string]model.FunctionRecord),
		edgeSet:   make(map[model.CallEdge]struct{}),
		results:   make(map[string]string),
	}
}

func (m *Memory) Functions(ctx context.Context) ([]model.FunctionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.FunctionRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.functions[id])
	}
	return out, nil
}

func (m *Memory) Edges(ctx context.Context) ([]model.CallEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]model.CallEdge(nil), m.edges...), nil
}

func (m *Memory) Result(ctx context.Context, id string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	text, ok := m.results[id]
	return text, ok, nil
}

func (m *Memory) PutResult(ctx context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[id] = text
	return nil
}

func (m *Memory) UpsertFunctions(ctx context.Context, functions []model.FunctionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range functions {
		if _, ok := m.functions[f.ID]; !ok {
			m.order = append(m.order, f.ID)
		}
		m.functions[f.ID] = f
	}
	return nil
}

func (m *Memory) UpsertEdges(ctx context.Context, edges []model.CallEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range edges {
		if _, ok := m.edgeSet[e]; ok {
			continue
		}
		m.edgeSet[e] = struct{}{}
		m.edges = append(m.edges, e)
	}
	return nil
}

func (m *Memory) Function(ctx context.Context, id string) (model.FunctionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.functions[id]
	if !ok {
		return model.FunctionRecord{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) Callees(ctx context.Context, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, e := range m.edges {
		if e.Caller == id {
			out = append(out, e.Callee)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
