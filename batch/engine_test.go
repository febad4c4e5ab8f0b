package batch

import (
	"testing"
	"time"

	"gridcore/cellvalue"
	"gridcore/sheet"
)

func newTestEngine(t *testing.T) (*Engine, sheet.SheetId) {
	t.Helper()
	e := NewEngine()
	e.SetClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	sh := e.Workbook().Sheets[0].ID
	return e, sh
}

func setValue(sh sheet.SheetId, row, col int, text string) *SetCellValue {
	return &SetCellValue{Sheet: sh, Row: row, Col: col, RawText: text}
}

func cellValue(e *Engine, sh sheet.SheetId, row, col int) cellvalue.Value {
	s := e.Workbook().SheetByID(sh)
	c := s.Cell(row, col)
	if c == nil {
		return cellvalue.EmptyVal()
	}
	if c.Stored.Kind == cellvalue.FormulaKind {
		return c.LastResult
	}
	return cellvalue.ValueFromStored(c.Stored)
}

func TestEngineSimpleRecompute(t *testing.T) {
	e, sh := newTestEngine(t)
	res := e.Apply([]Op{
		setValue(sh, 0, 0, "10"),
		setValue(sh, 1, 0, "20"),
		setValue(sh, 2, 0, "=A1+A2"),
	}, nil, true)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", res.Revision)
	}
	got := cellValue(e, sh, 2, 0)
	if got.Tag != cellvalue.VNumber || got.Num != 30 {
		t.Fatalf("A3 = %+v, want 30", got)
	}
	var cc *CellsChanged
	for _, ev := range res.Events {
		if c, ok := ev.(CellsChanged); ok {
			cc = &c
		}
	}
	if cc == nil || len(cc.Ranges) != 1 {
		t.Fatalf("expected exactly one CellsChanged range, got %+v", cc)
	}
	r := cc.Ranges[0].Rect
	if r.R1 != 0 || r.C1 != 0 || r.R2 != 2 || r.C2 != 0 {
		t.Fatalf("unexpected range %+v", r)
	}
}

func TestEngineChainedRecompute(t *testing.T) {
	e, sh := newTestEngine(t)
	setup := e.Apply([]Op{
		setValue(sh, 0, 0, "1"),
		setValue(sh, 1, 0, "=A1+1"),
		setValue(sh, 2, 0, "=A2+1"),
	}, nil, true)
	if setup.Err != nil {
		t.Fatalf("setup failed: %v", setup.Err)
	}
	res := e.Apply([]Op{setValue(sh, 0, 0, "10")}, nil, true)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if v := cellValue(e, sh, 1, 0); v.Num != 11 {
		t.Fatalf("A2 = %v, want 11", v.Num)
	}
	if v := cellValue(e, sh, 2, 0); v.Num != 12 {
		t.Fatalf("A3 = %v, want 12", v.Num)
	}
}

func TestEngineCycleDetection(t *testing.T) {
	e, sh := newTestEngine(t)
	res := e.Apply([]Op{
		setValue(sh, 0, 0, "=B1"),
		setValue(sh, 0, 1, "=A1"),
	}, nil, true)
	if res.Err != nil {
		t.Fatalf("batch should succeed even with a cycle: %v", res.Err)
	}
	if !res.CycleDetected {
		t.Fatalf("expected CycleDetected")
	}
	for _, id := range []struct{ row, col int }{{0, 0}, {0, 1}} {
		v := cellValue(e, sh, id.row, id.col)
		if v.Tag != cellvalue.VError || v.Err != cellvalue.ErrCycle {
			t.Fatalf("cell (%d,%d) = %+v, want #CYCLE!", id.row, id.col, v)
		}
	}
}

func TestEngineRollbackOnParseFailure(t *testing.T) {
	e, sh := newTestEngine(t)
	res := e.Apply([]Op{
		setValue(sh, 0, 0, "=1+1"),
		setValue(sh, 0, 1, "=@@@"),
	}, nil, true)
	if res.Err == nil {
		t.Fatalf("expected a failure")
	}
	if res.Err.Index != 1 {
		t.Fatalf("expected op_index 1, got %d", res.Err.Index)
	}
	if res.Revision != 0 {
		t.Fatalf("revision must be unchanged on failure, got %d", res.Revision)
	}
	s := e.Workbook().SheetByID(sh)
	if c := s.Cell(0, 0); c != nil {
		t.Fatalf("A1 should have been rolled back, found %+v", c)
	}
}

func TestEngineSpillAndRetract(t *testing.T) {
	e, sh := newTestEngine(t)
	res := e.Apply([]Op{setValue(sh, 0, 0, "=SEQUENCE(3)")}, nil, true)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if v := cellValue(e, sh, 0, 0); v.Num != 1 {
		t.Fatalf("A1 = %+v, want 1", v)
	}
	if v := cellValue(e, sh, 1, 0); v.Num != 2 {
		t.Fatalf("A2 = %+v, want 2", v)
	}
	if v := cellValue(e, sh, 2, 0); v.Num != 3 {
		t.Fatalf("A3 = %+v, want 3", v)
	}

	res2 := e.Apply([]Op{setValue(sh, 1, 0, "x")}, nil, true)
	if res2.Err != nil {
		t.Fatalf("unexpected error: %v", res2.Err)
	}
	a1 := cellValue(e, sh, 0, 0)
	if a1.Tag != cellvalue.VError || a1.Err != cellvalue.ErrSpill {
		t.Fatalf("A1 = %+v, want #SPILL!", a1)
	}
	a3 := cellValue(e, sh, 2, 0)
	if a3.Tag != cellvalue.VEmpty {
		t.Fatalf("A3 = %+v, want Empty after retraction", a3)
	}
}

func TestEngineRevisionMismatchRejected(t *testing.T) {
	e, sh := newTestEngine(t)
	stale := uint64(5)
	res := e.Apply([]Op{setValue(sh, 0, 0, "1")}, &stale, true)
	if res.Err == nil {
		t.Fatalf("expected revision mismatch error")
	}
}
