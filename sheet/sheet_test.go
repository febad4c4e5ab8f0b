package sheet

import (
	"testing"

	"gridcore/cellvalue"
)

func TestSetCellAndEmpty(t *testing.T) {
	s := NewSheet(0, "Sheet1")
	s.SetCell(0, 0, NewCell("42"))
	if s.PopulatedCount() != 1 {
		t.Fatalf("expected 1 populated cell, got %d", s.PopulatedCount())
	}
	s.SetCell(0, 0, NewCell(""))
	if s.PopulatedCount() != 0 {
		t.Fatalf("expected empty cell to be dropped, got %d populated", s.PopulatedCount())
	}
}

func TestEachCellRowMajor(t *testing.T) {
	s := NewSheet(0, "Sheet1")
	s.SetCell(1, 0, NewCell("b"))
	s.SetCell(0, 1, NewCell("a"))
	s.SetCell(0, 0, NewCell("c"))
	var order []string
	s.EachCell(func(row, col int, c *Cell) { order = append(order, c.Stored.Str) })
	want := []string{"c", "a", "b"}
	for i, w := range want {
		if order[i] != w {
			t.Errorf("position %d: got %q, want %q", i, order[i], w)
		}
	}
}

func TestInsertRowsShiftsCells(t *testing.T) {
	s := NewSheet(0, "Sheet1")
	s.SetCell(2, 0, NewCell("x"))
	s.InsertRows(1, 2)
	if s.Cell(2, 0) != nil {
		t.Fatal("expected cell to have moved")
	}
	if c := s.Cell(4, 0); c == nil || c.Stored.Str != "x" {
		t.Fatalf("expected shifted cell at row 4, got %+v", c)
	}
}

func TestDeleteRowsDropsCellsInSpan(t *testing.T) {
	s := NewSheet(0, "Sheet1")
	s.SetCell(1, 0, NewCell("deleted"))
	s.SetCell(5, 0, NewCell("kept"))
	s.DeleteRows(0, 3)
	if s.Cell(1, 0) != nil {
		t.Fatal("expected cell within deleted span to be dropped")
	}
	if c := s.Cell(2, 0); c == nil || c.Stored.Str != "kept" {
		t.Fatalf("expected shifted cell at row 2, got %+v", c)
	}
}

func TestAddMergeOverlap(t *testing.T) {
	s := NewSheet(0, "Sheet1")
	if err := s.AddMerge(Rect{0, 0, 2, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddMerge(Rect{1, 1, 3, 3}); err == nil {
		t.Fatal("expected OverlappingMerge error")
	}
}

func TestWorkbookCannotDeleteLastSheet(t *testing.T) {
	wb := NewWorkbook()
	if err := wb.DeleteSheet(wb.Sheets[0].ID); err == nil {
		t.Fatal("expected error deleting the last sheet")
	}
}

func TestNameStoreRejectsCellRefCollision(t *testing.T) {
	ns := NewNameStore()
	err := ns.Define("A1", NamedRange{})
	if err == nil {
		t.Fatal("expected rejection of a cell-reference-shaped name")
	}
}

func TestNameStoreResolve(t *testing.T) {
	ns := NewNameStore()
	if err := ns.Define("Revenue", NamedRange{Sheet: 0, StartRow: 0, StartCol: 0, EndRow: 0, EndCol: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ns.Resolve("revenue"); !ok {
		t.Fatal("expected case-insensitive resolution")
	}
}

func TestCellIsEmptyRespectsFormat(t *testing.T) {
	c := &Cell{Stored: cellvalue.EmptyStored, Format: cellvalue.Format{Bold: true}}
	if c.IsEmpty() {
		t.Fatal("expected non-default formatting to keep the cell alive")
	}
}
