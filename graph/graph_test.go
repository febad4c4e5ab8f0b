package graph

import (
	"testing"

	"gridcore/sheet"
)

func cid(row, col int) sheet.CellId { return sheet.CellId{Sheet: 0, Row: row, Col: col} }

func TestSetPrecedentsBuildsDependents(t *testing.T) {
	g := New()
	a1, a2, a3 := cid(0, 0), cid(1, 0), cid(2, 0)
	g.SetPrecedents(a3, []sheet.CellId{a1, a2})
	deps := g.Dependents(a1)
	if len(deps) != 1 || deps[0] != a3 {
		t.Fatalf("expected a3 in dependents of a1, got %+v", deps)
	}
}

func TestSetPrecedentsDiffsOldEdges(t *testing.T) {
	g := New()
	a1, a2, a3 := cid(0, 0), cid(1, 0), cid(2, 0)
	g.SetPrecedents(a3, []sheet.CellId{a1})
	g.SetPrecedents(a3, []sheet.CellId{a2})
	if len(g.Dependents(a1)) != 0 {
		t.Fatal("expected a1's dependent edge to a3 to be removed")
	}
	if len(g.Dependents(a2)) != 1 {
		t.Fatal("expected a2's dependent edge to a3 to be added")
	}
}

func TestDirtyClosure(t *testing.T) {
	g := New()
	a1, a2, a3 := cid(0, 0), cid(1, 0), cid(2, 0)
	g.SetPrecedents(a2, []sheet.CellId{a1})
	g.SetPrecedents(a3, []sheet.CellId{a2})
	closure := g.DirtyClosure([]sheet.CellId{a1})
	if len(closure) != 3 {
		t.Fatalf("expected 3 cells in closure, got %d: %+v", len(closure), closure)
	}
}

func TestPlanTopologicalOrder(t *testing.T) {
	g := New()
	a1, a2, a3 := cid(0, 0), cid(1, 0), cid(2, 0)
	g.SetPrecedents(a2, []sheet.CellId{a1})
	g.SetPrecedents(a3, []sheet.CellId{a2})
	plan := g.Plan([]sheet.CellId{a1, a2, a3})
	if len(plan.Cyclic) != 0 {
		t.Fatalf("expected no cycles, got %+v", plan.Cyclic)
	}
	pos := map[sheet.CellId]int{}
	for i, c := range plan.Order {
		pos[c] = i
	}
	if pos[a1] >= pos[a2] || pos[a2] >= pos[a3] {
		t.Fatalf("expected order a1 < a2 < a3, got %+v", plan.Order)
	}
}

func TestPlanDetectsCycle(t *testing.T) {
	g := New()
	a1, b1 := cid(0, 0), cid(0, 1)
	g.SetPrecedents(a1, []sheet.CellId{b1})
	g.SetPrecedents(b1, []sheet.CellId{a1})
	plan := g.Plan([]sheet.CellId{a1, b1})
	if !plan.Cyclic[a1] || !plan.Cyclic[b1] {
		t.Fatalf("expected both cells cycle-marked, got %+v", plan.Cyclic)
	}
}

func TestPlanDetectsSelfLoop(t *testing.T) {
	g := New()
	a1 := cid(0, 0)
	g.SetPrecedents(a1, []sheet.CellId{a1})
	plan := g.Plan([]sheet.CellId{a1})
	if !plan.Cyclic[a1] {
		t.Fatal("expected self-loop to be cycle-marked")
	}
}

func TestRemoveCellClearsEdges(t *testing.T) {
	g := New()
	a1, a2 := cid(0, 0), cid(1, 0)
	g.SetPrecedents(a2, []sheet.CellId{a1})
	g.RemoveCell(a2)
	if len(g.Dependents(a1)) != 0 {
		t.Fatal("expected dependents of a1 to be cleared after removing a2")
	}
}
