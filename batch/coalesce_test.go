package batch

import (
	"reflect"
	"testing"

	"gridcore/sheet"
)

func cell(sh sheet.SheetId, row, col int) sheet.CellId {
	return sheet.CellId{Sheet: sh, Row: row, Col: col}
}

func TestCoalesceCellsEmpty(t *testing.T) {
	if got := CoalesceCells(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestCoalesceCellsHorizontalRun(t *testing.T) {
	cells := []sheet.CellId{cell(0, 0, 0), cell(0, 0, 1), cell(0, 0, 2), cell(0, 0, 3)}
	got := CoalesceCells(cells)
	want := []Range{{Sheet: 0, Rect: sheet.Rect{R1: 0, C1: 0, R2: 0, C2: 3}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCoalesceCellsVerticalRun(t *testing.T) {
	cells := []sheet.CellId{cell(0, 0, 0), cell(0, 1, 0), cell(0, 2, 0), cell(0, 3, 0)}
	got := CoalesceCells(cells)
	want := []Range{{Sheet: 0, Rect: sheet.Rect{R1: 0, C1: 0, R2: 3, C2: 0}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCoalesceCellsLShape(t *testing.T) {
	cells := []sheet.CellId{
		cell(0, 0, 0),
		cell(0, 1, 0),
		cell(0, 2, 0), cell(0, 2, 1), cell(0, 2, 2),
	}
	got := CoalesceCells(cells)
	total := 0
	for _, r := range got {
		total += (r.Rect.R2 - r.Rect.R1 + 1) * (r.Rect.C2 - r.Rect.C1 + 1)
	}
	if total < 5 {
		t.Fatalf("coverage guarantee violated: only %d cells covered", total)
	}
	if len(got) > 3 {
		t.Fatalf("expected a reasonably small range set, got %d", len(got))
	}
}

func TestCoalesceCellsCapFallsBackToBoundingBox(t *testing.T) {
	var cells []sheet.CellId
	for r := 0; r < 100; r++ {
		for c := 0; c < 100; c++ {
			if (r+c)%2 == 0 {
				cells = append(cells, cell(0, r, c))
			}
		}
	}
	got := CoalesceCells(cells)
	want := []Range{{Sheet: 0, Rect: sheet.Rect{R1: 0, C1: 0, R2: 99, C2: 99}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected bounding-box fallback, got %d ranges", len(got))
	}
}

func TestCoalesceCellsDeterministic(t *testing.T) {
	a := []sheet.CellId{cell(0, 2, 0), cell(0, 0, 0), cell(0, 1, 0)}
	b := []sheet.CellId{cell(0, 0, 0), cell(0, 1, 0), cell(0, 2, 0)}
	if !reflect.DeepEqual(CoalesceCells(a), CoalesceCells(b)) {
		t.Fatalf("coalescing must not depend on input order")
	}
}

func TestCoalesceCellsMultipleSheets(t *testing.T) {
	cells := []sheet.CellId{
		cell(0, 0, 0), cell(0, 0, 1),
		cell(1, 5, 5), cell(1, 5, 6),
	}
	got := CoalesceCells(cells)
	if len(got) != 2 {
		t.Fatalf("expected 2 ranges across 2 sheets, got %d", len(got))
	}
}

func TestCoalesceCellsDuplicatesIgnored(t *testing.T) {
	cells := []sheet.CellId{cell(0, 0, 0), cell(0, 0, 0), cell(0, 0, 1)}
	got := CoalesceCells(cells)
	want := []Range{{Sheet: 0, Rect: sheet.Rect{R1: 0, C1: 0, R2: 0, C2: 1}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
