// Package graph implements the dependency graph over cell identities:
// precedent/dependent edge side-tables, Tarjan's SCC for cycle
// detection, and topological ordering of a dirty recompute closure.
package graph

import "gridcore/sheet"

// Graph stores, per CellId, its precedent set (cells it reads) and
// dependent set (cells that read it), plus the dynamic-dep and cycle
// flags described in the dependency-graph invariants. Edges are kept
// as plain index pairs — no back-pointer ownership — so sheet deletion
// and row/col shifts only need to drop map entries.
type Graph struct {
	precedents map[sheet.CellId]map[sheet.CellId]bool
	dependents map[sheet.CellId]map[sheet.CellId]bool
	dynamic    map[sheet.CellId]bool
	volatile   map[sheet.CellId]bool
	cycle      map[sheet.CellId]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		precedents: map[sheet.CellId]map[sheet.CellId]bool{},
		dependents: map[sheet.CellId]map[sheet.CellId]bool{},
		dynamic:    map[sheet.CellId]bool{},
		volatile:   map[sheet.CellId]bool{},
		cycle:      map[sheet.CellId]bool{},
	}
}

// SetPrecedents replaces cell's precedent set with newPrecedents,
// diffing against the old set so only the O(|old∪new|) changed edges
// are touched.
func (g *Graph) SetPrecedents(cell sheet.CellId, newPrecedents []sheet.CellId) {
	newSet := map[sheet.CellId]bool{}
	for _, p := range newPrecedents {
		newSet[p] = true
	}
	old := g.precedents[cell]
	for p := range old {
		if !newSet[p] {
			g.removeDependentEdge(p, cell)
		}
	}
	for p := range newSet {
		if !old[p] {
			g.addDependentEdge(p, cell)
		}
	}
	if len(newSet) == 0 {
		delete(g.precedents, cell)
	} else {
		g.precedents[cell] = newSet
	}
}

func (g *Graph) addDependentEdge(precedent, dependent sheet.CellId) {
	if g.dependents[precedent] == nil {
		g.dependents[precedent] = map[sheet.CellId]bool{}
	}
	g.dependents[precedent][dependent] = true
}

func (g *Graph) removeDependentEdge(precedent, dependent sheet.CellId) {
	if deps, ok := g.dependents[precedent]; ok {
		delete(deps, dependent)
		if len(deps) == 0 {
			delete(g.dependents, precedent)
		}
	}
}

// RemoveCell drops every edge touching cell, used when its sheet is
// deleted or no longer exists.
func (g *Graph) RemoveCell(cell sheet.CellId) {
	g.SetPrecedents(cell, nil)
	for dep := range g.dependents[cell] {
		precSet := g.precedents[dep]
		delete(precSet, cell)
		if len(precSet) == 0 {
			delete(g.precedents, dep)
		}
	}
	delete(g.dependents, cell)
	delete(g.dynamic, cell)
	delete(g.volatile, cell)
	delete(g.cycle, cell)
}

// RemoveSheet drops every cell belonging to sheetID, enforcing the
// invariant that no CellId in the graph ever refers to a deleted sheet.
func (g *Graph) RemoveSheet(sheetID sheet.SheetId) {
	var toRemove []sheet.CellId
	seen := map[sheet.CellId]bool{}
	for c := range g.precedents {
		if c.Sheet == sheetID && !seen[c] {
			toRemove = append(toRemove, c)
			seen[c] = true
		}
	}
	for c := range g.dependents {
		if c.Sheet == sheetID && !seen[c] {
			toRemove = append(toRemove, c)
			seen[c] = true
		}
	}
	for _, c := range toRemove {
		g.RemoveCell(c)
	}
}

func (g *Graph) Precedents(cell sheet.CellId) []sheet.CellId {
	return keys(g.precedents[cell])
}

func (g *Graph) Dependents(cell sheet.CellId) []sheet.CellId {
	return keys(g.dependents[cell])
}

func keys(m map[sheet.CellId]bool) []sheet.CellId {
	out := make([]sheet.CellId, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (g *Graph) SetDynamic(cell sheet.CellId, dynamic bool) {
	if dynamic {
		g.dynamic[cell] = true
	} else {
		delete(g.dynamic, cell)
	}
}

func (g *Graph) IsDynamic(cell sheet.CellId) bool { return g.dynamic[cell] }

// DynamicCells returns every cell flagged dynamic-dep (INDIRECT/OFFSET
// users), the floor of every recompute's dirty root set.
func (g *Graph) DynamicCells() []sheet.CellId { return keys(setOf(g.dynamic)) }

func (g *Graph) SetVolatile(cell sheet.CellId, volatile bool) {
	if volatile {
		g.volatile[cell] = true
	} else {
		delete(g.volatile, cell)
	}
}

func (g *Graph) IsVolatile(cell sheet.CellId) bool { return g.volatile[cell] }

// VolatileCells returns every cell flagged volatile (NOW/TODAY/RAND
// users), which re-evaluate on every recompute.
func (g *Graph) VolatileCells() []sheet.CellId { return keys(setOf(g.volatile)) }

func setOf(m map[sheet.CellId]bool) map[sheet.CellId]bool { return m }

// SetCycleMarked records whether cell belongs to a non-trivial cycle, as
// decided by the most recent Plan. Batch recompute mirrors this onto the
// cell's own CycleMarked field; IsCycleMarked reads the graph's copy.
// Plan itself does not consult it.
func (g *Graph) SetCycleMarked(cell sheet.CellId, marked bool) {
	if marked {
		g.cycle[cell] = true
	} else {
		delete(g.cycle, cell)
	}
}

func (g *Graph) IsCycleMarked(cell sheet.CellId) bool { return g.cycle[cell] }

// DirtyClosure returns the forward-reachable set from roots along
// dependent edges (BFS), i.e. every cell whose value could change as a
// consequence of the roots changing.
func (g *Graph) DirtyClosure(roots []sheet.CellId) []sheet.CellId {
	visited := map[sheet.CellId]bool{}
	queue := append([]sheet.CellId(nil), roots...)
	for _, r := range roots {
		visited[r] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range g.dependents[cur] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return keys(visited)
}
