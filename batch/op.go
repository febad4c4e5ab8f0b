// Package batch implements the transactional batch engine: the
// op types of §4.5.1, the five-step apply algorithm of §4.5.2
// (validate, snapshot, apply-with-rollback, rebuild/recompute,
// bump+emit), and the event structs of §4.5.3.
package batch

import (
	"errors"
	"fmt"

	"gridcore/cellvalue"
	"gridcore/sheet"
)

// Sentinel errors callers branch on with errors.Is. The cell/sheet
// structural errors are the sheet package's own sentinels, re-exported
// here so batch callers need only import this package.
var (
	ErrRevisionMismatch = errors.New("revision mismatch")
	ErrUnknownSheet     = sheet.ErrUnknownSheet
	ErrOverlappingMerge = sheet.ErrOverlappingMerge
	ErrLastSheet        = sheet.ErrLastSheet
)

// Op is a single mutation in a batch. Validate checks the op against
// the current, as-yet-unmutated workbook state. Apply performs the
// mutation and returns the set of cells whose displayed content
// changed (for event coalescing) and an undo closure the engine calls,
// in reverse order, if a later op in the same batch fails.
type Op interface {
	// Describe names the op for logging and apply_ops_result diagnostics.
	Describe() string
	Validate(wb *sheet.Workbook) error
	Apply(wb *sheet.Workbook) (changed []sheet.CellId, undo func(), err error)
}

// Axis distinguishes row and column operations for Insert/Delete.
type Axis int

const (
	Rows Axis = iota
	Cols
)

// SetCellValue parses RawText per §4.1 and stores it, leaving
// formatting untouched.
type SetCellValue struct {
	Sheet   sheet.SheetId
	Row     int
	Col     int
	RawText string
	// StrictParse, when true, turns a formula parse failure into an
	// op-level error instead of storing a Formula cell whose AST is
	// nil (which otherwise evaluates to #PARSE!), per §7's note that
	// callers opt in to stricter validation.
	StrictParse bool
}

func (o *SetCellValue) Describe() string {
	return fmt.Sprintf("SetCellValue(%v!%d,%d)", o.Sheet, o.Row, o.Col)
}

func (o *SetCellValue) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	return nil
}

func (o *SetCellValue) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	id := sheet.CellId{Sheet: o.Sheet, Row: o.Row, Col: o.Col}
	old := s.Cell(o.Row, o.Col)
	var oldCopy *sheet.Cell
	if old != nil {
		c := *old
		oldCopy = &c
	}

	nc := buildCell(o.RawText, s.Name)
	if o.StrictParse && nc.Stored.Kind == cellvalue.FormulaKind && nc.AST == nil {
		return nil, nil, &ParseError{Text: o.RawText}
	}
	if old != nil {
		nc.Format = old.Format
	}
	s.SetCell(o.Row, o.Col, nc)

	undo := func() { s.SetCell(o.Row, o.Col, oldCopy) }
	return []sheet.CellId{id}, undo, nil
}

// ParseError is the op-level error surfaced when StrictParse rejects a
// formula that fails to parse.
type ParseError struct{ Text string }

func (e *ParseError) Error() string { return fmt.Sprintf("formula_parse_error: %q", e.Text) }

// SetCellFormat merges a format patch into the cell's existing format.
// Per §4.5.1 this never triggers recompute.
type SetCellFormat struct {
	Sheet  sheet.SheetId
	Row    int
	Col    int
	Format cellvalue.Format
}

func (o *SetCellFormat) Describe() string {
	return fmt.Sprintf("SetCellFormat(%v!%d,%d)", o.Sheet, o.Row, o.Col)
}

func (o *SetCellFormat) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	return nil
}

func (o *SetCellFormat) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	id := sheet.CellId{Sheet: o.Sheet, Row: o.Row, Col: o.Col}
	old := s.Cell(o.Row, o.Col)
	var oldCopy *sheet.Cell
	if old != nil {
		c := *old
		oldCopy = &c
	}
	nc := old
	if nc == nil {
		nc = &sheet.Cell{}
	} else {
		c := *old
		nc = &c
	}
	nc.Format = nc.Format.Merge(o.Format)
	s.SetCell(o.Row, o.Col, nc)
	undo := func() { s.SetCell(o.Row, o.Col, oldCopy) }
	return []sheet.CellId{id}, undo, nil
}

// ClearCell is equivalent to SetCellValue with empty text and default
// formatting.
type ClearCell struct {
	Sheet sheet.SheetId
	Row   int
	Col   int
}

func (o *ClearCell) Describe() string {
	return fmt.Sprintf("ClearCell(%v!%d,%d)", o.Sheet, o.Row, o.Col)
}

func (o *ClearCell) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	return nil
}

func (o *ClearCell) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	id := sheet.CellId{Sheet: o.Sheet, Row: o.Row, Col: o.Col}
	old := s.Cell(o.Row, o.Col)
	var oldCopy *sheet.Cell
	if old != nil {
		c := *old
		oldCopy = &c
	}
	s.SetCell(o.Row, o.Col, nil)
	undo := func() { s.SetCell(o.Row, o.Col, oldCopy) }
	return []sheet.CellId{id}, undo, nil
}

// InsertRowsCols shifts cells and side-tables at or beyond At by Count
// along Axis, preserving formula source text byte-exact (the graph is
// rebuilt for affected cells rather than rewriting references).
type InsertRowsCols struct {
	Sheet sheet.SheetId
	Axis  Axis
	At    int
	Count int
}

func (o *InsertRowsCols) Describe() string {
	return fmt.Sprintf("InsertRowsCols(%v,axis=%d,at=%d,n=%d)", o.Sheet, o.Axis, o.At, o.Count)
}

func (o *InsertRowsCols) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	if o.Count <= 0 || o.At < 0 {
		return fmt.Errorf("invalid_op: insert count=%d at=%d", o.Count, o.At)
	}
	return nil
}

func (o *InsertRowsCols) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	if o.Axis == Rows {
		s.InsertRows(o.At, o.Count)
	} else {
		s.InsertCols(o.At, o.Count)
	}
	undo := func() {
		if o.Axis == Rows {
			s.DeleteRows(o.At, o.Count)
		} else {
			s.DeleteCols(o.At, o.Count)
		}
	}
	return shiftedIDs(s, o.Axis, o.At), undo, nil
}

// DeleteRowsCols is the inverse of InsertRowsCols. It is lossy (cells
// inside the deleted span are dropped), so Apply takes a full Snapshot
// of the sheet first and its undo restores that snapshot, deleted cells
// included.
type DeleteRowsCols struct {
	Sheet sheet.SheetId
	Axis  Axis
	At    int
	Count int
}

func (o *DeleteRowsCols) Describe() string {
	return fmt.Sprintf("DeleteRowsCols(%v,axis=%d,at=%d,n=%d)", o.Sheet, o.Axis, o.At, o.Count)
}

func (o *DeleteRowsCols) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	if o.Count <= 0 || o.At < 0 {
		return fmt.Errorf("invalid_op: delete count=%d at=%d", o.Count, o.At)
	}
	return nil
}

func (o *DeleteRowsCols) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	snapshot := s.Snapshot()
	changed := shiftedIDs(s, o.Axis, o.At)
	if o.Axis == Rows {
		s.DeleteRows(o.At, o.Count)
	} else {
		s.DeleteCols(o.At, o.Count)
	}
	undo := func() { s.Restore(snapshot) }
	return changed, undo, nil
}

// AddSheet appends a new sheet, generating "SheetN" when Name is empty.
type AddSheet struct {
	Name string
}

func (o *AddSheet) Describe() string { return fmt.Sprintf("AddSheet(%q)", o.Name) }

func (o *AddSheet) Validate(wb *sheet.Workbook) error {
	if o.Name != "" && wb.SheetByName(o.Name) != nil {
		return fmt.Errorf("name_conflict: sheet %q already exists", o.Name)
	}
	return nil
}

func (o *AddSheet) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.AddSheet(o.Name)
	undo := func() { wb.DeleteSheet(s.ID) }
	return nil, undo, nil
}

// RenameSheet changes a sheet's display name.
type RenameSheet struct {
	Sheet sheet.SheetId
	Name  string
}

func (o *RenameSheet) Describe() string { return fmt.Sprintf("RenameSheet(%v,%q)", o.Sheet, o.Name) }

func (o *RenameSheet) Validate(wb *sheet.Workbook) error {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	if existing := wb.SheetByName(o.Name); existing != nil && existing.ID != o.Sheet {
		return fmt.Errorf("name_conflict: sheet %q already exists", o.Name)
	}
	return nil
}

func (o *RenameSheet) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	old := s.Name
	if err := wb.RenameSheet(o.Sheet, o.Name); err != nil {
		return nil, nil, err
	}
	undo := func() { wb.RenameSheet(o.Sheet, old) }
	return nil, undo, nil
}

// DeleteSheet removes a sheet; the last remaining sheet cannot be
// deleted.
type DeleteSheet struct {
	Sheet sheet.SheetId
}

func (o *DeleteSheet) Describe() string { return fmt.Sprintf("DeleteSheet(%v)", o.Sheet) }

func (o *DeleteSheet) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	if len(wb.Sheets) <= 1 {
		return ErrLastSheet
	}
	return nil
}

func (o *DeleteSheet) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	idx := -1
	for i, sh := range wb.Sheets {
		if sh.ID == o.Sheet {
			idx = i
			break
		}
	}
	if err := wb.DeleteSheet(o.Sheet); err != nil {
		return nil, nil, err
	}
	undo := func() {
		wb.Sheets = append(wb.Sheets, nil)
		copy(wb.Sheets[idx+1:], wb.Sheets[idx:len(wb.Sheets)-1])
		wb.Sheets[idx] = s
	}
	return nil, undo, nil
}

// DefineName creates a new named range.
type DefineName struct {
	Name   string
	Target sheet.NamedRange
}

func (o *DefineName) Describe() string { return fmt.Sprintf("DefineName(%q)", o.Name) }

func (o *DefineName) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Target.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Target.Sheet)
	}
	if _, exists := wb.Names.Resolve(o.Name); exists {
		return fmt.Errorf("name_conflict: name %q already defined", o.Name)
	}
	return sheet.ValidateName(o.Name)
}

func (o *DefineName) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	if err := wb.Names.Define(o.Name, o.Target); err != nil {
		return nil, nil, err
	}
	undo := func() { wb.Names.Delete(o.Name) }
	return nil, undo, nil
}

// RenameName renames a named range, keeping its target unchanged.
type RenameName struct {
	OldName string
	NewName string
}

func (o *RenameName) Describe() string { return fmt.Sprintf("RenameName(%q,%q)", o.OldName, o.NewName) }

func (o *RenameName) Validate(wb *sheet.Workbook) error {
	if _, ok := wb.Names.Resolve(o.OldName); !ok {
		return fmt.Errorf("invalid_op: name %q not found", o.OldName)
	}
	if _, exists := wb.Names.Resolve(o.NewName); exists {
		return fmt.Errorf("name_conflict: name %q already defined", o.NewName)
	}
	return nil
}

func (o *RenameName) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	if err := wb.Names.Rename(o.OldName, o.NewName); err != nil {
		return nil, nil, err
	}
	undo := func() { wb.Names.Rename(o.NewName, o.OldName) }
	return nil, undo, nil
}

// DeleteName removes a named range.
type DeleteName struct {
	Name string
}

func (o *DeleteName) Describe() string { return fmt.Sprintf("DeleteName(%q)", o.Name) }

func (o *DeleteName) Validate(wb *sheet.Workbook) error {
	if _, ok := wb.Names.Resolve(o.Name); !ok {
		return fmt.Errorf("invalid_op: name %q not found", o.Name)
	}
	return nil
}

func (o *DeleteName) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	nr, _ := wb.Names.Resolve(o.Name)
	if err := wb.Names.Delete(o.Name); err != nil {
		return nil, nil, err
	}
	undo := func() { wb.Names.Define(o.Name, nr) }
	return nil, undo, nil
}

// AddMerge adds a merged rectangle, failing on overlap with an
// existing merge.
type AddMerge struct {
	Sheet sheet.SheetId
	Rect  sheet.Rect
}

func (o *AddMerge) Describe() string { return fmt.Sprintf("AddMerge(%v,%+v)", o.Sheet, o.Rect) }

func (o *AddMerge) Validate(wb *sheet.Workbook) error {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	n := o.Rect.Normalized()
	for _, m := range s.Merges() {
		if n.Overlaps(m) {
			return fmt.Errorf("%w: %+v overlaps %+v", ErrOverlappingMerge, n, m)
		}
	}
	return nil
}

func (o *AddMerge) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	if err := s.AddMerge(o.Rect); err != nil {
		return nil, nil, fmt.Errorf("%w", ErrOverlappingMerge)
	}
	undo := func() { s.RemoveMerge(o.Rect) }
	return mergeCellIDs(o.Sheet, o.Rect), undo, nil
}

// RemoveMerge removes the merge exactly matching Rect, if present.
type RemoveMerge struct {
	Sheet sheet.SheetId
	Rect  sheet.Rect
}

func (o *RemoveMerge) Describe() string { return fmt.Sprintf("RemoveMerge(%v,%+v)", o.Sheet, o.Rect) }

func (o *RemoveMerge) Validate(wb *sheet.Workbook) error {
	if wb.SheetByID(o.Sheet) == nil {
		return fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	return nil
}

func (o *RemoveMerge) Apply(wb *sheet.Workbook) ([]sheet.CellId, func(), error) {
	s := wb.SheetByID(o.Sheet)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: sheet %v", ErrUnknownSheet, o.Sheet)
	}
	s.RemoveMerge(o.Rect)
	undo := func() { s.AddMerge(o.Rect) }
	return mergeCellIDs(o.Sheet, o.Rect), undo, nil
}

func mergeCellIDs(sh sheet.SheetId, r sheet.Rect) []sheet.CellId {
	n := r.Normalized()
	var out []sheet.CellId
	for row := n.R1; row <= n.R2; row++ {
		for col := n.C1; col <= n.C2; col++ {
			out = append(out, sheet.CellId{Sheet: sh, Row: row, Col: col})
		}
	}
	return out
}
