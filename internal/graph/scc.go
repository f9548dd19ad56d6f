package graph

// Component is one strongly connected component of a CallGraph.
// Member order inside a component carries no meaning.
type Component []string

// Trivial reports whether c is a single function that does not call itself.
func (c Component) Trivial(g *CallGraph) bool {
	return len(c) == 1 && !g.HasSelfLoop(c[0])
}

// Contains reports whether id is a member of c.
func (c Component) Contains(id string) bool {
	for _, m := range c {
		if m == id {
			return true
		}
	}
	return false
}

const unvisited = -1

type frame struct {
	v    int // vertex index
	next int // position in v's adjacency list
}

// Components decomposes g into strongly connected components, ordered so
// that for every edge u→v crossing components, v's component comes before
// u's. This is the order Tarjan's algorithm completes components in.
//
// The depth-first search keeps its own frame stack so call chains of any
// length are handled without growing the goroutine stack. Output depends
// only on the vertex and adjacency order of g.
func Components(g *CallGraph) []Component {
	n := g.Len()
	if n == 0 {
		return nil
	}

	pos := make(map[string]int, n)
	for i, id := range g.vertices {
		pos[id] = i
	}
	adj := make([][]int, n)
	for i, id := range g.vertices {
		callees := g.adj[id]
		adj[i] = make([]int, len(callees))
		for j, c := range callees {
			adj[i][j] = pos[c]
		}
	}

	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
	}

	var (
		counter int
		stack   []int
		work    []frame
		out     []Component
	)

	visit := func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true
		work = append(work, frame{v: v})
	}

	for root := 0; root < n; root++ {
		if index[root] != unvisited {
			continue
		}
		visit(root)

		for len(work) > 0 {
			top := &work[len(work)-1]
			v := top.v

			if top.next < len(adj[v]) {
				w := adj[v][top.next]
				top.next++
				switch {
				case index[w] == unvisited:
					visit(w)
				case onStack[w]:
					low[v] = min(low[v], index[w])
				}
				continue
			}

			// All successors of v explored.
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].v
				low[parent] = min(low[parent], low[v])
			}

			if low[v] != index[v] {
				continue
			}
			var comp Component
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, g.vertices[w])
				if w == v {
					break
				}
			}
			out = append(out, comp)
		}
	}

	return out
}

// Index maps every vertex to the position of its component in comps.
func Index(comps []Component) map[string]int {
	idx := make(map[string]int)
	for i, c := range comps {
		for _, id := range c {
			idx[id] = i
		}
	}
	return idx
}
