package batch

import (
	"sort"

	"gridcore/sheet"
)

// maxRangesPerSheet caps the number of rectangles CoalesceCells will
// emit for a single sheet before it gives up and falls back to one
// bounding box, bounding event payload size against pathological
// (e.g. checkerboard) change patterns.
const maxRangesPerSheet = 2000

// Range is a rectangle of changed cells on one sheet, the unit
// CellsChanged events carry.
type Range struct {
	Sheet sheet.SheetId
	Rect  sheet.Rect
}

// CoalesceCells folds a set of changed cells into a minimal-ish set of
// rectangles: group by sheet, fold each row's changed columns into
// horizontal runs, then fold vertically adjacent runs that share
// identical column bounds. Output is a superset of the input (every
// input cell is covered, possibly by a larger rectangle) and
// deterministic regardless of input order.
func CoalesceCells(cells []sheet.CellId) []Range {
	if len(cells) == 0 {
		return nil
	}

	bySheet := map[sheet.SheetId][][2]int{}
	for _, c := range cells {
		bySheet[c.Sheet] = append(bySheet[c.Sheet], [2]int{c.Row, c.Col})
	}

	var sheetIDs []sheet.SheetId
	for sh := range bySheet {
		sheetIDs = append(sheetIDs, sh)
	}
	sort.Slice(sheetIDs, func(i, j int) bool { return sheetIDs[i] < sheetIDs[j] })

	var out []Range
	for _, sh := range sheetIDs {
		for _, rect := range coalesceSheetCells(bySheet[sh]) {
			out = append(out, Range{Sheet: sh, Rect: rect})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Sheet != b.Sheet {
			return a.Sheet < b.Sheet
		}
		if a.Rect.R1 != b.Rect.R1 {
			return a.Rect.R1 < b.Rect.R1
		}
		if a.Rect.C1 != b.Rect.C1 {
			return a.Rect.C1 < b.Rect.C1
		}
		if a.Rect.R2 != b.Rect.R2 {
			return a.Rect.R2 < b.Rect.R2
		}
		return a.Rect.C2 < b.Rect.C2
	})
	return out
}

func coalesceSheetCells(coords [][2]int) []sheet.Rect {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i][0] != coords[j][0] {
			return coords[i][0] < coords[j][0]
		}
		return coords[i][1] < coords[j][1]
	})
	coords = dedupCoords(coords)
	if len(coords) == 0 {
		return nil
	}

	// Step 1: collapse each row's columns into horizontal runs.
	type run struct{ c1, c2 int }
	rowRuns := map[int][]run{}
	curRow := coords[0][0]
	runStart, runEnd := coords[0][1], coords[0][1]
	flush := func() {
		rowRuns[curRow] = append(rowRuns[curRow], run{runStart, runEnd})
	}
	for _, rc := range coords[1:] {
		row, col := rc[0], rc[1]
		if row == curRow && col == runEnd+1 {
			runEnd = col
			continue
		}
		flush()
		curRow, runStart, runEnd = row, col, col
	}
	flush()

	var rows []int
	for r := range rowRuns {
		rows = append(rows, r)
	}
	sort.Ints(rows)

	// Step 2: fold runs vertically when column bounds match the most
	// recent run seen for that (c1, c2) key and rows are adjacent.
	type colKey struct{ c1, c2 int }
	type vrun struct{ r1, r2 int }
	vertical := map[colKey][]vrun{}
	for _, row := range rows {
		for _, rn := range rowRuns[row] {
			key := colKey{rn.c1, rn.c2}
			spans := vertical[key]
			if n := len(spans); n > 0 && spans[n-1].r2+1 == row {
				spans[n-1].r2 = row
				vertical[key] = spans
				continue
			}
			vertical[key] = append(spans, vrun{row, row})
		}
	}

	var ranges []sheet.Rect
	for key, spans := range vertical {
		for _, v := range spans {
			ranges = append(ranges, sheet.Rect{R1: v.r1, C1: key.c1, R2: v.r2, C2: key.c2})
		}
	}

	if len(ranges) > maxRangesPerSheet {
		box := ranges[0]
		for _, r := range ranges[1:] {
			if r.R1 < box.R1 {
				box.R1 = r.R1
			}
			if r.R2 > box.R2 {
				box.R2 = r.R2
			}
			if r.C1 < box.C1 {
				box.C1 = r.C1
			}
			if r.C2 > box.C2 {
				box.C2 = r.C2
			}
		}
		return []sheet.Rect{box}
	}
	return ranges
}

func dedupCoords(c [][2]int) [][2]int {
	if len(c) == 0 {
		return c
	}
	out := c[:1]
	for _, v := range c[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
