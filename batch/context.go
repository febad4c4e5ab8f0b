package batch

import (
	"time"

	"gridcore/ast"
	"gridcore/cellvalue"
	"gridcore/eval"
	"gridcore/parser"
	"gridcore/sheet"
)

// workbookContext implements eval.Context over a live *sheet.Workbook,
// scoped to whichever cell is currently being recomputed. One is built
// per cell evaluated, matching eval.Context's own documented contract
// ("a single Context is built per formula evaluation").
type workbookContext struct {
	wb        *sheet.Workbook
	sheetName string
	row, col  int
	now       time.Time
}

func (c *workbookContext) resolveSheet(name string) *sheet.Sheet {
	if name == "" {
		name = c.sheetName
	}
	return c.wb.SheetByName(name)
}

func cellValueOf(cell *sheet.Cell) cellvalue.Value {
	if cell.Stored.Kind == cellvalue.FormulaKind {
		if cell.CycleMarked {
			return cellvalue.Err(cellvalue.ErrCycle)
		}
		return cell.LastResult
	}
	return cellvalue.ValueFromStored(cell.Stored)
}

func (c *workbookContext) Resolve(ref *ast.CellRef) cellvalue.Value {
	s := c.resolveSheet(ref.Sheet)
	if s == nil {
		return cellvalue.Err(cellvalue.ErrRef)
	}
	cell := s.Cell(ref.Row, ref.Col)
	if cell == nil {
		return cellvalue.EmptyVal()
	}
	return cellValueOf(cell)
}

func (c *workbookContext) ResolveRange(rng *ast.RangeRef) [][]cellvalue.Value {
	sheetName := rng.Sheet
	r1, r2 := rng.From.Row, rng.To.Row
	c1, c2 := rng.From.Col, rng.To.Col
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if c1 > c2 {
		c1, c2 = c2, c1
	}
	out := make([][]cellvalue.Value, 0, r2-r1+1)
	for row := r1; row <= r2; row++ {
		line := make([]cellvalue.Value, 0, c2-c1+1)
		for col := c1; col <= c2; col++ {
			line = append(line, c.Resolve(&ast.CellRef{Sheet: sheetName, Row: row, Col: col}))
		}
		out = append(out, line)
	}
	return out
}

func (c *workbookContext) ResolveName(name string) (ast.Expr, bool) {
	nr, ok := c.wb.Names.Resolve(name)
	if !ok {
		return nil, false
	}
	s := c.wb.SheetByID(nr.Sheet)
	if s == nil {
		return nil, false
	}
	if nr.StartRow == nr.EndRow && nr.StartCol == nr.EndCol {
		return &ast.CellRef{Sheet: s.Name, Row: nr.StartRow, Col: nr.StartCol}, true
	}
	return &ast.RangeRef{
		Sheet: s.Name,
		From:  ast.CellRef{Sheet: s.Name, Row: nr.StartRow, Col: nr.StartCol},
		To:    ast.CellRef{Sheet: s.Name, Row: nr.EndRow, Col: nr.EndCol},
	}, true
}

func (c *workbookContext) Sheet() string    { return c.sheetName }
func (c *workbookContext) Cell() (int, int) { return c.row, c.col }
func (c *workbookContext) Now() time.Time   { return c.now }

func (c *workbookContext) ParseIndirect(text string) (ast.Expr, error) {
	return parser.Parse("="+text, c.sheetName)
}

func (c *workbookContext) SheetDims(sheetName string) (int, int) {
	s := c.resolveSheet(sheetName)
	if s == nil {
		return 0, 0
	}
	return s.UsedRange()
}

var _ eval.Context = (*workbookContext)(nil)
