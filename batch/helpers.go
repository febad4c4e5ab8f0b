package batch

import (
	"gridcore/ast"
	"gridcore/cellvalue"
	"gridcore/parser"
	"gridcore/sheet"
)

// buildCell classifies raw per §4.1 and, for formula text, parses it
// into an AST. A formula that fails to parse is stored with AST==nil,
// which the evaluator reports as #PARSE! (unless the caller opted into
// StrictParse, handled by the caller before this cell is stored).
func buildCell(raw, sheetName string) *sheet.Cell {
	stored := cellvalue.Classify(raw)
	c := &sheet.Cell{Stored: stored}
	if stored.Kind != cellvalue.FormulaKind {
		return c
	}
	expr, err := parser.Parse(stored.Source, sheetName)
	if err != nil {
		return c
	}
	c.AST = expr
	c.Dynamic = ast.HasDynamicDeps(expr)
	c.Volatile = ast.HasVolatileCalls(expr)
	return c
}

// shiftedIDs returns every CellId at or beyond `at` along axis,
// i.e. every cell identity that row/column insertion or deletion
// touches, used for the op's CellsChanged contribution.
func shiftedIDs(s *sheet.Sheet, axis Axis, at int) []sheet.CellId {
	var out []sheet.CellId
	s.EachCell(func(row, col int, c *sheet.Cell) {
		if (axis == Rows && row >= at) || (axis == Cols && col >= at) {
			out = append(out, sheet.CellId{Sheet: s.ID, Row: row, Col: col})
		}
	})
	return out
}
