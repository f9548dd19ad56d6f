// Package graph builds the in-scope call graph and decomposes it into
// strongly connected components in callee-first order.
package graph

import (
	"sort"

	"github.com/phobologic/crux/internal/model"
)

// CallGraph maps each in-scope function to its in-scope callees.
// Vertex order and adjacency order follow the order of the inputs given to
// Build, which keeps every traversal over the graph deterministic.
type CallGraph struct {
	vertices []string
	adj      map[string][]string
	edgeSet  map[[2]string]struct{}
}

// New returns an empty graph with the given vertices. Duplicate IDs keep
// their first position.
func New(ids []string) *CallGraph {
	g := &CallGraph{
		adj:     make(map[string][]string, len(ids)),
		edgeSet: make(map[[2]string]struct{}),
	}
	for _, id := range ids {
		g.AddVertex(id)
	}
	return g
}

// AddVertex adds id to the graph if it is not already present.
func (g *CallGraph) AddVertex(id string) {
	if _, ok := g.adj[id]; ok {
		return
	}
	g.vertices = append(g.vertices, id)
	g.adj[id] = []string{}
}

// AddEdge adds caller → callee when both endpoints are vertices.
// It reports whether the edge was added; out-of-scope and duplicate edges
// are ignored.
func (g *CallGraph) AddEdge(caller, callee string) bool {
	callees, ok := g.adj[caller]
	if !ok {
		return false
	}
	if _, ok := g.adj[callee]; !ok {
		return false
	}
	key := [2]string{caller, callee}
	if _, dup := g.edgeSet[key]; dup {
		return false
	}
	g.edgeSet[key] = struct{}{}
	g.adj[caller] = append(callees, callee)
	return true
}

// Vertices returns the vertex IDs in insertion order.
func (g *CallGraph) Vertices() []string {
	return g.vertices
}

// Callees returns the in-scope callees of id in insertion order.
func (g *CallGraph) Callees(id string) []string {
	return g.adj[id]
}

// Has reports whether id is an in-scope vertex.
func (g *CallGraph) Has(id string) bool {
	_, ok := g.adj[id]
	return ok
}

// Len returns the number of vertices.
func (g *CallGraph) Len() int {
	return len(g.vertices)
}

// EdgeCount returns the number of distinct in-scope edges.
func (g *CallGraph) EdgeCount() int {
	return len(g.edgeSet)
}

// HasSelfLoop reports whether id calls itself.
func (g *CallGraph) HasSelfLoop(id string) bool {
	_, ok := g.edgeSet[[2]string{id, id}]
	return ok
}

// Build creates the in-scope call graph. Every function becomes a vertex,
// even when it calls nothing and nothing calls it. An edge is kept only when
// both its caller and its callee have a record; everything else (library
// calls, edges from unknown callers) is dropped silently.
func Build(functions []model.FunctionRecord, edges []model.CallEdge) *CallGraph {
	ids := make([]string, len(functions))
	for i := range functions {
		ids[i] = functions[i].ID
	}
	g := New(ids)
	for _, e := range edges {
		g.AddEdge(e.Caller, e.Callee)
	}
	return g
}

// BuildCallEdges builds function-level call edges from the parsed file infos.
// Definitions are identified by idOf; a reference whose name matches one or
// more definitions yields an edge to each of them. References that match no
// definition produce an edge to externalID(name) so the caller keeps a
// record of the call. Edges are deduplicated and sorted.
func BuildCallEdges(fileInfos []model.FileInfo, idOf func(file string, tag model.Tag) string, externalID func(name string) string) []model.CallEdge {
	// Index definitions by qualified name and by unqualified name so that a
	// call `obj.method()` resolves to `Type.method`.
	byName := make(map[string][]string)
	enclosingID := make(map[string]string)
	for i := range fileInfos {
		fi := &fileInfos[i]
		for j := range fi.Tags {
			tag := &fi.Tags[j]
			if tag.Kind != model.Definition {
				continue
			}
			id := idOf(fi.Path, *tag)
			enclosingID[fi.Path+"\x00"+tag.Name] = id
			byName[tag.Name] = append(byName[tag.Name], id)
			if short := unqualified(tag.Name); short != tag.Name {
				byName[short] = append(byName[short], id)
			}
		}
	}

	type edgeKey struct{ caller, callee string }
	seen := make(map[edgeKey]struct{})

	var edges []model.CallEdge
	add := func(caller, callee string) {
		key := edgeKey{caller, callee}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		edges = append(edges, model.CallEdge{Caller: caller, Callee: callee})
	}

	for i := range fileInfos {
		fi := &fileInfos[i]
		for j := range fi.Tags {
			tag := &fi.Tags[j]
			if tag.Kind != model.Reference || tag.Enclosing == "" {
				continue
			}
			caller, ok := enclosingID[fi.Path+"\x00"+tag.Enclosing]
			if !ok {
				continue
			}
			targets := byName[tag.Name]
			if len(targets) == 0 {
				add(caller, externalID(tag.Name))
				continue
			}
			for _, callee := range targets {
				add(caller, callee)
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})

	return edges
}

func unqualified(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}
