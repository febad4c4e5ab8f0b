package graph

import "gridcore/sheet"

// tarjanState carries the working variables of a single Tarjan's SCC
// pass, scoped to the induced subgraph over a cell set.
type tarjanState struct {
	index   map[sheet.CellId]int
	lowlink map[sheet.CellId]int
	onStack map[sheet.CellId]bool
	stack   []sheet.CellId
	counter int
	sccs    [][]sheet.CellId
	edges   func(sheet.CellId) []sheet.CellId
}

// stronglyConnectedComponents runs Tarjan's algorithm over the
// subgraph induced by `cells`, following edges(cell) restricted to
// members of `cells`. Returned components include singletons; callers
// decide which to treat as cyclic.
func stronglyConnectedComponents(cells []sheet.CellId, edges func(sheet.CellId) []sheet.CellId) [][]sheet.CellId {
	members := map[sheet.CellId]bool{}
	for _, c := range cells {
		members[c] = true
	}
	st := &tarjanState{
		index:   map[sheet.CellId]int{},
		lowlink: map[sheet.CellId]int{},
		onStack: map[sheet.CellId]bool{},
		edges: func(c sheet.CellId) []sheet.CellId {
			var out []sheet.CellId
			for _, n := range edges(c) {
				if members[n] {
					out = append(out, n)
				}
			}
			return out
		},
	}
	for _, c := range cells {
		if _, visited := st.index[c]; !visited {
			st.strongConnect(c)
		}
	}
	return st.sccs
}

func (st *tarjanState) strongConnect(v sheet.CellId) {
	st.index[v] = st.counter
	st.lowlink[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, w := range st.edges(v) {
		if _, visited := st.index[w]; !visited {
			st.strongConnect(w)
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.lowlink[v] {
				st.lowlink[v] = st.index[w]
			}
		}
	}

	if st.lowlink[v] == st.index[v] {
		var component []sheet.CellId
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, component)
	}
}

// RecomputePlan is the result of ordering a dirty closure: a
// topological order for acyclic cells, and the set of cells that
// belong to a non-trivial cycle and must evaluate to #CYCLE! without
// recursive descent.
type RecomputePlan struct {
	Order  []sheet.CellId
	Cyclic map[sheet.CellId]bool
}

// Plan detects cycles within the induced subgraph over `cells` (edges
// following the precedent relation, i.e. evaluation order: precedent
// before dependent) and returns a topological order for the acyclic
// remainder. A self-loop (single-node SCC whose node is its own
// precedent) counts as cyclic, same as any larger SCC.
func (g *Graph) Plan(cells []sheet.CellId) RecomputePlan {
	members := map[sheet.CellId]bool{}
	for _, c := range cells {
		members[c] = true
	}

	sccs := stronglyConnectedComponents(cells, func(c sheet.CellId) []sheet.CellId {
		return g.Dependents(c)
	})

	cyclic := map[sheet.CellId]bool{}
	for _, comp := range sccs {
		if len(comp) > 1 {
			for _, c := range comp {
				cyclic[c] = true
			}
			continue
		}
		c := comp[0]
		if g.dependents[c][c] {
			cyclic[c] = true
		}
	}

	order := kahnOrder(cells, cyclic, func(c sheet.CellId) []sheet.CellId {
		var out []sheet.CellId
		for _, p := range g.Precedents(c) {
			if members[p] && !cyclic[p] {
				out = append(out, p)
			}
		}
		return out
	})

	return RecomputePlan{Order: order, Cyclic: cyclic}
}

// kahnOrder computes a topological order of the acyclic members of
// cells (precedent edges given by precedentsOf), using in-degree
// counting so the result is evaluation-ready: every precedent of a
// cell appears before it.
func kahnOrder(cells []sheet.CellId, cyclic map[sheet.CellId]bool, precedentsOf func(sheet.CellId) []sheet.CellId) []sheet.CellId {
	acyclic := make([]sheet.CellId, 0, len(cells))
	for _, c := range cells {
		if !cyclic[c] {
			acyclic = append(acyclic, c)
		}
	}
	memberSet := map[sheet.CellId]bool{}
	for _, c := range acyclic {
		memberSet[c] = true
	}

	dependentsOf := map[sheet.CellId][]sheet.CellId{}
	indegree := map[sheet.CellId]int{}
	for _, c := range acyclic {
		indegree[c] = 0
	}
	for _, c := range acyclic {
		for _, p := range precedentsOf(c) {
			if memberSet[p] {
				dependentsOf[p] = append(dependentsOf[p], c)
				indegree[c]++
			}
		}
	}

	var queue []sheet.CellId
	for _, c := range acyclic {
		if indegree[c] == 0 {
			queue = append(queue, c)
		}
	}
	var order []sheet.CellId
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, dep := range dependentsOf[cur] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return order
}
