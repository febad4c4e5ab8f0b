package batch

import (
	"fmt"
	"strings"
	"time"

	"gridcore/ast"
	"gridcore/cellvalue"
	"gridcore/eval"
	"gridcore/graph"
	"gridcore/sheet"
)

// Engine is the single owner of a workbook and its dependency graph. It
// is not safe for concurrent use; §5 assigns it a single-threaded
// owning goroutine (session/bridge.go) that serializes every request
// through it.
type Engine struct {
	wb    *sheet.Workbook
	graph *graph.Graph
	clock func() time.Time
}

// NewEngine returns an Engine over a freshly created single-sheet
// workbook.
func NewEngine() *Engine {
	return &Engine{wb: sheet.NewWorkbook(), graph: graph.New(), clock: time.Now}
}

// NewEngineFor wraps an existing workbook (e.g. loaded by a caller from
// whatever persistence format it chooses — out of scope here) and
// rebuilds the dependency graph for every formula cell already present.
func NewEngineFor(wb *sheet.Workbook) *Engine {
	e := &Engine{wb: wb, graph: graph.New(), clock: time.Now}
	for _, s := range wb.Sheets {
		s.EachCell(func(row, col int, c *sheet.Cell) {
			if c.Stored.Kind == cellvalue.FormulaKind {
				e.rebuildCellEdges(sheet.CellId{Sheet: s.ID, Row: row, Col: col})
			}
		})
	}
	return e
}

// Workbook exposes the underlying workbook for read-only inspection
// (session/server.go's inspect path reads through this, never mutates
// it directly).
func (e *Engine) Workbook() *sheet.Workbook { return e.wb }

// SetClock overrides the evaluator's injected clock; used by tests so
// NOW()/TODAY() are deterministic.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// OpError is the op-level failure surfaced in apply_ops_result, naming
// the zero-based index of the op that failed and why.
type OpError struct {
	Index  int
	Reason error
}

func (e *OpError) Error() string { return fmt.Sprintf("op %d: %v", e.Index, e.Reason) }

// Result is everything the session layer needs to build
// apply_ops_result and the events that follow it.
type Result struct {
	Revision      uint64
	Applied       int
	Total         int
	Err           *OpError
	CycleDetected bool
	Events        []Event
}

// Apply implements §4.5.2's five-step algorithm: validate-then-apply
// each op in order with rollback on the first failure, rebuild affected
// graph edges, detect cycles, recompute the dirty closure, and (only on
// full success) bump the revision and build the ordered event list.
// expectedRevision, when non-nil, must match the current revision or
// the whole batch is rejected with ErrRevisionMismatch before any op
// runs. strictParse turns a formula parse failure in any SetCellValue
// op into an op-level error instead of a stored #PARSE! cell.
func (e *Engine) Apply(ops []Op, expectedRevision *uint64, strictParse bool) Result {
	fail := func(applied int, opErr *OpError) Result {
		return Result{
			Revision: e.wb.Revision,
			Applied:  applied,
			Total:    len(ops),
			Err:      opErr,
			Events: []Event{BatchApplied{
				Revision: e.wb.Revision,
				Applied:  applied,
				Total:    len(ops),
				Error:    opErr.Reason.Error(),
			}},
		}
	}

	if expectedRevision != nil && *expectedRevision != e.wb.Revision {
		return fail(0, &OpError{Index: -1, Reason: ErrRevisionMismatch})
	}

	if len(ops) == 0 {
		return Result{Revision: e.wb.Revision, Applied: 0, Total: 0}
	}

	var undos []func()
	rollback := func() {
		for i := len(undos) - 1; i >= 0; i-- {
			undos[i]()
		}
	}

	var directChanged []sheet.CellId
	var valueChanged []sheet.CellId
	var structuralSheets []sheet.SheetId
	var touchedNames []string
	var spillOriginRoots []sheet.CellId

	for i, op := range ops {
		if sv, ok := op.(*SetCellValue); ok && strictParse {
			sv.StrictParse = true
		}
		if err := op.Validate(e.wb); err != nil {
			rollback()
			return fail(i, &OpError{Index: i, Reason: err})
		}
		// Spilled receivers belonging to a cell whose raw content is
		// about to be replaced must not linger once the cell stops
		// being the formula that owned them. Conversely, directly
		// overwriting a receiver must force its origin to re-evaluate,
		// since the origin's spill rectangle may no longer be free.
		if id, isCellOp := cellOpTarget(op); isCellOp {
			if s := e.wb.SheetByID(id.Sheet); s != nil {
				if old := s.Cell(id.Row, id.Col); old != nil && old.IsSpillRecv {
					spillOriginRoots = append(spillOriginRoots, old.SpillOrigin)
				}
			}
			clearSpillReceivers(e.wb, id)
		}
		changed, undo, err := op.Apply(e.wb)
		if err != nil {
			rollback()
			return fail(i, &OpError{Index: i, Reason: err})
		}
		undos = append(undos, undo)
		directChanged = append(directChanged, changed...)

		switch o := op.(type) {
		case *SetCellValue, *ClearCell:
			valueChanged = append(valueChanged, changed...)
		case *InsertRowsCols:
			structuralSheets = append(structuralSheets, o.Sheet)
		case *DeleteRowsCols:
			structuralSheets = append(structuralSheets, o.Sheet)
		case *DeleteSheet:
			e.graph.RemoveSheet(o.Sheet)
		case *DefineName:
			touchedNames = append(touchedNames, o.Name)
		case *RenameName:
			touchedNames = append(touchedNames, o.OldName, o.NewName)
		case *DeleteName:
			touchedNames = append(touchedNames, o.Name)
			// SetCellFormat, AddMerge, RemoveMerge, AddSheet, RenameSheet:
			// no graph or recompute effect, already reflected in directChanged.
		}
	}

	for _, id := range valueChanged {
		e.rebuildCellEdges(id)
	}

	dirtyRoots := append([]sheet.CellId(nil), valueChanged...)
	dirtyRoots = append(dirtyRoots, spillOriginRoots...)
	for _, sh := range structuralSheets {
		dirtyRoots = append(dirtyRoots, e.rebuildSheetGraph(sh)...)
	}
	for _, name := range touchedNames {
		dirtyRoots = append(dirtyRoots, e.cellsReferencingName(name)...)
	}
	dirtyRoots = append(dirtyRoots, e.graph.DynamicCells()...)
	dirtyRoots = append(dirtyRoots, e.graph.VolatileCells()...)

	now := e.clock()
	recomputed, cycleDetected := e.recompute(dirtyRoots, now)

	allChanged := append(directChanged, recomputed...)

	prev := e.wb.Revision
	e.wb.Revision++
	events := buildEvents(prev, e.wb.Revision, allChanged, len(ops))

	return Result{
		Revision:      e.wb.Revision,
		Applied:       len(ops),
		Total:         len(ops),
		CycleDetected: cycleDetected,
		Events:        events,
	}
}

// cellOpTarget extracts the CellId a value-replacing op targets, if any.
func cellOpTarget(op Op) (sheet.CellId, bool) {
	switch o := op.(type) {
	case *SetCellValue:
		return sheet.CellId{Sheet: o.Sheet, Row: o.Row, Col: o.Col}, true
	case *ClearCell:
		return sheet.CellId{Sheet: o.Sheet, Row: o.Row, Col: o.Col}, true
	default:
		return sheet.CellId{}, false
	}
}

// rebuildCellEdges recomputes id's precedent set, dynamic-dep flag, and
// volatile flag from its current AST, mirroring them onto the Cell
// itself as well as the graph.
func (e *Engine) rebuildCellEdges(id sheet.CellId) {
	s := e.wb.SheetByID(id.Sheet)
	if s == nil {
		e.graph.RemoveCell(id)
		return
	}
	c := s.Cell(id.Row, id.Col)
	if c == nil || c.Stored.Kind != cellvalue.FormulaKind || c.AST == nil {
		e.graph.SetPrecedents(id, nil)
		e.graph.SetDynamic(id, false)
		e.graph.SetVolatile(id, false)
		return
	}
	prec := e.staticPrecedents(s.Name, c.AST)
	e.graph.SetPrecedents(id, prec)
	dyn := ast.HasDynamicDeps(c.AST)
	vol := ast.HasVolatileCalls(c.AST)
	e.graph.SetDynamic(id, dyn)
	e.graph.SetVolatile(id, vol)
	c.Dynamic = dyn
	c.Volatile = vol
}

// rebuildSheetGraph fully rebuilds graph edges for every formula cell on
// sheetID (used after a row/column insert or delete, since cell
// identities shift without their formula text being rewritten) and
// returns every formula cell on the sheet as a dirty root: any of them
// may read a literal coordinate whose contents moved.
func (e *Engine) rebuildSheetGraph(sheetID sheet.SheetId) []sheet.CellId {
	s := e.wb.SheetByID(sheetID)
	if s == nil {
		e.graph.RemoveSheet(sheetID)
		return nil
	}
	e.graph.RemoveSheet(sheetID)
	var roots []sheet.CellId
	s.EachCell(func(row, col int, c *sheet.Cell) {
		if c.Stored.Kind != cellvalue.FormulaKind {
			return
		}
		id := sheet.CellId{Sheet: sheetID, Row: row, Col: col}
		e.rebuildCellEdges(id)
		roots = append(roots, id)
	})
	return roots
}

// staticPrecedents resolves an AST's static references (cells, ranges,
// and named ranges it reads) into the concrete CellId set the
// dependency graph needs, per invariant 2: a formula's precedent set is
// static_refs(ast) ∪ cells reached through resolved named ranges.
// References to an unknown sheet or name are skipped; the evaluator
// reports #REF!/#NAME? for those at evaluation time, but they cannot
// contribute a graph edge to a cell that does not exist.
func (e *Engine) staticPrecedents(defaultSheet string, root ast.Expr) []sheet.CellId {
	cells, ranges, names := ast.CollectStaticRefs(root, defaultSheet)
	var out []sheet.CellId
	for _, c := range cells {
		if id, ok := e.sheetIDByName(c.Sheet); ok {
			out = append(out, sheet.CellId{Sheet: id, Row: c.Row, Col: c.Col})
		}
	}
	for _, r := range ranges {
		if id, ok := e.sheetIDByName(r.Sheet); ok {
			out = append(out, rectCellIDs(id, r.From.Row, r.From.Col, r.To.Row, r.To.Col)...)
		}
	}
	for _, name := range names {
		if nr, ok := e.wb.Names.Resolve(name); ok {
			out = append(out, rectCellIDs(nr.Sheet, nr.StartRow, nr.StartCol, nr.EndRow, nr.EndCol)...)
		}
	}
	return out
}

func (e *Engine) sheetIDByName(name string) (sheet.SheetId, bool) {
	s := e.wb.SheetByName(name)
	if s == nil {
		return 0, false
	}
	return s.ID, true
}

func rectCellIDs(sh sheet.SheetId, r1, c1, r2, c2 int) []sheet.CellId {
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if c1 > c2 {
		c1, c2 = c2, c1
	}
	out := make([]sheet.CellId, 0, (r2-r1+1)*(c2-c1+1))
	for row := r1; row <= r2; row++ {
		for col := c1; col <= c2; col++ {
			out = append(out, sheet.CellId{Sheet: sh, Row: row, Col: col})
		}
	}
	return out
}

// cellsReferencingName returns every formula cell anywhere in the
// workbook whose AST mentions name, used to widen the dirty root set
// when a named range is defined, renamed, or deleted (lookup is
// dynamic, so the affected cells cannot be found via graph edges alone
// until after this rebuild pass).
func (e *Engine) cellsReferencingName(name string) []sheet.CellId {
	target := strings.ToLower(name)
	var out []sheet.CellId
	for _, s := range e.wb.Sheets {
		sheetName := s.Name
		s.EachCell(func(row, col int, c *sheet.Cell) {
			if c.Stored.Kind != cellvalue.FormulaKind || c.AST == nil {
				return
			}
			_, _, names := ast.CollectStaticRefs(c.AST, sheetName)
			for _, n := range names {
				if strings.ToLower(n) == target {
					id := sheet.CellId{Sheet: s.ID, Row: row, Col: col}
					out = append(out, id)
					e.rebuildCellEdges(id)
					break
				}
			}
		})
	}
	return out
}

// recompute orders the forward-reachable closure of roots, evaluates
// every acyclic cell in dependency order, marks cyclic cells #CYCLE!,
// and handles array spill. It returns every cell whose stored content
// changed as a result (origins, their spill receivers, and cleared
// former receivers) plus whether any cycle was found.
func (e *Engine) recompute(roots []sheet.CellId, now time.Time) ([]sheet.CellId, bool) {
	if len(roots) == 0 {
		return nil, false
	}
	closure := e.graph.DirtyClosure(roots)
	if len(closure) == 0 {
		return nil, false
	}
	plan := e.graph.Plan(closure)

	var changed []sheet.CellId
	cycleDetected := false
	for _, id := range closure {
		marked := plan.Cyclic[id]
		e.graph.SetCycleMarked(id, marked)
		if marked {
			cycleDetected = true
		}
	}
	for id := range plan.Cyclic {
		s := e.wb.SheetByID(id.Sheet)
		if s == nil {
			continue
		}
		c := s.Cell(id.Row, id.Col)
		if c == nil {
			continue
		}
		c.CycleMarked = true
		c.LastResult = cellvalue.Err(cellvalue.ErrCycle)
		changed = append(changed, id)
	}

	for _, id := range plan.Order {
		s := e.wb.SheetByID(id.Sheet)
		if s == nil {
			continue
		}
		c := s.Cell(id.Row, id.Col)
		if c == nil || c.Stored.Kind != cellvalue.FormulaKind {
			continue
		}
		c.CycleMarked = false
		changed = append(changed, clearSpillReceivers(e.wb, id)...)
		if c.AST == nil {
			c.LastResult = cellvalue.Err(cellvalue.ErrParse)
			changed = append(changed, id)
			continue
		}

		ctx := &workbookContext{wb: e.wb, sheetName: s.Name, row: id.Row, col: id.Col, now: now}
		result := eval.Eval(ctx, c.AST)
		changed = append(changed, id)

		if result.Spills() {
			rows, cols := result.Dims()
			if spillFits(s, id.Row, id.Col, rows, cols) {
				c.LastResult = result.ToFlat()
				for r := 0; r < rows; r++ {
					for cc := 0; cc < cols; cc++ {
						if r == 0 && cc == 0 {
							continue
						}
						recvID := sheet.CellId{Sheet: id.Sheet, Row: id.Row + r, Col: id.Col + cc}
						recv := &sheet.Cell{
							Stored:      cellvalue.StoredFromValue(result.Array[r][cc]),
							IsSpillRecv: true,
							SpillOrigin: id,
						}
						s.SetCell(recvID.Row, recvID.Col, recv)
						changed = append(changed, recvID)
					}
				}
			} else {
				c.LastResult = cellvalue.Err(cellvalue.ErrSpill)
			}
		} else {
			c.LastResult = result.ToFlat()
		}
	}

	return changed, cycleDetected
}

// spillFits reports whether the rows x cols rectangle rooted at
// (row, col) is free of populated cells other than the origin itself.
func spillFits(s *sheet.Sheet, row, col, rows, cols int) bool {
	for r := 0; r < rows; r++ {
		for cc := 0; cc < cols; cc++ {
			if r == 0 && cc == 0 {
				continue
			}
			if existing := s.Cell(row+r, col+cc); existing != nil && !existing.IsEmpty() {
				return false
			}
		}
	}
	return true
}

// clearSpillReceivers drops every cell on originID's sheet that the
// origin formula previously spilled into, per §4.3.1's rule that prior
// receivers are cleared before an origin is re-evaluated (or before its
// raw content is replaced entirely). It returns the cleared cells.
func clearSpillReceivers(wb *sheet.Workbook, originID sheet.CellId) []sheet.CellId {
	s := wb.SheetByID(originID.Sheet)
	if s == nil {
		return nil
	}
	var cleared []sheet.CellId
	s.EachCell(func(row, col int, c *sheet.Cell) {
		if c.IsSpillRecv && c.SpillOrigin == originID {
			cleared = append(cleared, sheet.CellId{Sheet: originID.Sheet, Row: row, Col: col})
		}
	})
	for _, id := range cleared {
		s.SetCell(id.Row, id.Col, nil)
	}
	return cleared
}
