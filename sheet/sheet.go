package sheet

import "fmt"

// MaxRows and MaxCols bound the reference logical extent of a sheet:
// 65536 rows by 256 columns.
const (
	MaxRows = 65536
	MaxCols = 256
)

// coord is the sparse storage key: (row, col).
type coord struct{ row, col int }

// Sheet is a single worksheet: identity, sparse cell storage, side
// tables for row/column sizing, and merged regions.
type Sheet struct {
	ID   SheetId
	Name string

	cells     map[coord]*Cell
	rowHeight map[int]float64
	colWidth  map[int]float64
	merges    []Rect
}

// NewSheet creates an empty sheet with the given id and name.
func NewSheet(id SheetId, name string) *Sheet {
	return &Sheet{
		ID:        id,
		Name:      name,
		cells:     map[coord]*Cell{},
		rowHeight: map[int]float64{},
		colWidth:  map[int]float64{},
	}
}

// Cell returns the cell at (row, col), or nil if unpopulated.
func (s *Sheet) Cell(row, col int) *Cell {
	return s.cells[coord{row, col}]
}

// SetCell stores c at (row, col), or removes the entry entirely when c
// is empty (value and formatting both default), keeping storage O(populated).
func (s *Sheet) SetCell(row, col int, c *Cell) {
	if c == nil || c.IsEmpty() {
		delete(s.cells, coord{row, col})
		return
	}
	s.cells[coord{row, col}] = c
}

// EachCell calls fn for every populated cell in row-major order.
func (s *Sheet) EachCell(fn func(row, col int, c *Cell)) {
	coords := make([]coord, 0, len(s.cells))
	for k := range s.cells {
		coords = append(coords, k)
	}
	sortCoordsRowMajor(coords)
	for _, k := range coords {
		fn(k.row, k.col, s.cells[k])
	}
}

func sortCoordsRowMajor(coords []coord) {
	// insertion sort is adequate: callers only use this for bounded
	// iteration/export paths, not hot recompute loops.
	for i := 1; i < len(coords); i++ {
		for j := i; j > 0 && less(coords[j], coords[j-1]); j-- {
			coords[j], coords[j-1] = coords[j-1], coords[j]
		}
	}
}

func less(a, b coord) bool {
	if a.row != b.row {
		return a.row < b.row
	}
	return a.col < b.col
}

// PopulatedCount returns the number of non-default cells, for tests
// and inspect summaries.
func (s *Sheet) PopulatedCount() int { return len(s.cells) }

// UsedRange returns one past the maximum populated row and column
// (i.e. the exclusive bounds of the populated region); the batch
// package's evaluation context returns it from SheetDims. An empty sheet
// reports (0, 0).
func (s *Sheet) UsedRange() (rows, cols int) {
	for k := range s.cells {
		if k.row+1 > rows {
			rows = k.row + 1
		}
		if k.col+1 > cols {
			cols = k.col + 1
		}
	}
	return rows, cols
}

// RowHeight and ColWidth read sparse side-table overrides; zero means
// "use the default".
func (s *Sheet) RowHeight(row int) float64 { return s.rowHeight[row] }
func (s *Sheet) ColWidth(col int) float64  { return s.colWidth[col] }

func (s *Sheet) SetRowHeight(row int, h float64) { s.rowHeight[row] = h }
func (s *Sheet) SetColWidth(col int, w float64)  { s.colWidth[col] = w }

// Merges returns the current set of merged rectangles.
func (s *Sheet) Merges() []Rect { return s.merges }

// MergeAt returns the merge rectangle containing (row, col), if any.
func (s *Sheet) MergeAt(row, col int) (Rect, bool) {
	for _, m := range s.merges {
		if m.Contains(row, col) {
			return m, true
		}
	}
	return Rect{}, false
}

// AddMerge validates rect against every existing merge and adds it.
func (s *Sheet) AddMerge(rect Rect) error {
	rect = rect.Normalized()
	for _, m := range s.merges {
		if rect.Overlaps(m) {
			return fmt.Errorf("%w: %+v overlaps %+v", ErrOverlappingMerge, rect, m)
		}
	}
	s.merges = append(s.merges, rect)
	return nil
}

// RemoveMerge removes the merge exactly matching rect, if present.
func (s *Sheet) RemoveMerge(rect Rect) {
	rect = rect.Normalized()
	out := s.merges[:0]
	for _, m := range s.merges {
		if m != rect {
			out = append(out, m)
		}
	}
	s.merges = out
}

// InsertRows shifts every cell and side-table entry at or beyond `at`
// down by count rows. Formula ASTs are not rewritten; callers rely on
// the dependency graph rebuild to reconcile references.
func (s *Sheet) InsertRows(at, count int) {
	s.shiftRows(at, count)
}

// DeleteRows removes rows [at, at+count) and shifts everything beyond
// up by count. Cells inside the deleted span are dropped.
func (s *Sheet) DeleteRows(at, count int) {
	s.shiftRows(at, -count)
}

func (s *Sheet) shiftRows(at, delta int) {
	newCells := map[coord]*Cell{}
	for k, c := range s.cells {
		switch {
		case delta > 0 && k.row >= at:
			newCells[coord{k.row + delta, k.col}] = c
		case delta < 0 && k.row >= at && k.row < at-delta:
			// dropped: inside the deleted span
		case delta < 0 && k.row >= at-delta:
			newCells[coord{k.row + delta, k.col}] = c
		default:
			newCells[k] = c
		}
	}
	s.cells = newCells

	newHeights := map[int]float64{}
	for row, h := range s.rowHeight {
		switch {
		case delta > 0 && row >= at:
			newHeights[row+delta] = h
		case delta < 0 && row >= at && row < at-delta:
		case delta < 0 && row >= at-delta:
			newHeights[row+delta] = h
		default:
			newHeights[row] = h
		}
	}
	s.rowHeight = newHeights

	for i, m := range s.merges {
		s.merges[i] = shiftRect(m, delta, 0, at)
	}
}

// InsertCols and DeleteCols mirror InsertRows/DeleteRows along columns.
func (s *Sheet) InsertCols(at, count int) { s.shiftCols(at, count) }
func (s *Sheet) DeleteCols(at, count int) { s.shiftCols(at, -count) }

func (s *Sheet) shiftCols(at, delta int) {
	newCells := map[coord]*Cell{}
	for k, c := range s.cells {
		switch {
		case delta > 0 && k.col >= at:
			newCells[coord{k.row, k.col + delta}] = c
		case delta < 0 && k.col >= at && k.col < at-delta:
		case delta < 0 && k.col >= at-delta:
			newCells[coord{k.row, k.col + delta}] = c
		default:
			newCells[k] = c
		}
	}
	s.cells = newCells

	newWidths := map[int]float64{}
	for col, w := range s.colWidth {
		switch {
		case delta > 0 && col >= at:
			newWidths[col+delta] = w
		case delta < 0 && col >= at && col < at-delta:
		case delta < 0 && col >= at-delta:
			newWidths[col+delta] = w
		default:
			newWidths[col] = w
		}
	}
	s.colWidth = newWidths

	for i, m := range s.merges {
		s.merges[i] = shiftRect(m, 0, delta, at)
	}
}

// Snapshot is an opaque, point-in-time copy of a sheet's cell storage
// and side-tables, used by lossy ops (row/column deletion) to support
// batch rollback.
type Snapshot struct {
	cells     map[coord]*Cell
	rowHeight map[int]float64
	colWidth  map[int]float64
	merges    []Rect
}

// Snapshot captures the current state of s for later Restore.
func (s *Sheet) Snapshot() *Snapshot {
	cells := make(map[coord]*Cell, len(s.cells))
	for k, c := range s.cells {
		cp := *c
		cells[k] = &cp
	}
	rowHeight := make(map[int]float64, len(s.rowHeight))
	for k, v := range s.rowHeight {
		rowHeight[k] = v
	}
	colWidth := make(map[int]float64, len(s.colWidth))
	for k, v := range s.colWidth {
		colWidth[k] = v
	}
	return &Snapshot{
		cells:     cells,
		rowHeight: rowHeight,
		colWidth:  colWidth,
		merges:    append([]Rect(nil), s.merges...),
	}
}

// Restore replaces s's cell storage and side-tables with a previously
// captured Snapshot.
func (s *Sheet) Restore(snap *Snapshot) {
	s.cells = snap.cells
	s.rowHeight = snap.rowHeight
	s.colWidth = snap.colWidth
	s.merges = snap.merges
}

func shiftRect(r Rect, deltaRow, deltaCol, at int) Rect {
	if deltaRow != 0 {
		if r.R1 >= at {
			r.R1 += deltaRow
		}
		if r.R2 >= at {
			r.R2 += deltaRow
		}
	}
	if deltaCol != 0 {
		if r.C1 >= at {
			r.C1 += deltaCol
		}
		if r.C2 >= at {
			r.C2 += deltaCol
		}
	}
	return r
}
