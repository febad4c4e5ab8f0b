package eval

import (
	"gridcore/ast"
	"gridcore/cellvalue"
	"gridcore/sheet"
)

// refArgCoords unwraps a reference-shaped argument (CellRef, the
// top-left corner of a RangeRef, or a resolved NamedRangeRef) into its
// sheet and zero-based coordinates, for functions like OFFSET that
// need the reference's position rather than its value.
func refArgCoords(ctx Context, expr ast.Expr) (sheet string, row, col int, ok bool) {
	switch n := expr.(type) {
	case *ast.CellRef:
		sheet = n.Sheet
		if sheet == "" {
			sheet = ctx.Sheet()
		}
		return sheet, n.Row, n.Col, true
	case *ast.RangeRef:
		return refArgCoords(ctx, &n.From)
	case *ast.NamedRangeRef:
		target, found := ctx.ResolveName(n.Name)
		if !found {
			return "", 0, 0, false
		}
		return refArgCoords(ctx, target)
	default:
		return "", 0, 0, false
	}
}

func fnROW(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) == 0 {
		row, _ := ctx.Cell()
		return cellvalue.Num(float64(row + 1))
	}
	if _, row, _, ok := refArgCoords(ctx, args[0]); ok {
		return cellvalue.Num(float64(row + 1))
	}
	return cellvalue.Err(cellvalue.ErrValue)
}

func fnCOLUMN(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) == 0 {
		_, col := ctx.Cell()
		return cellvalue.Num(float64(col + 1))
	}
	if _, _, col, ok := refArgCoords(ctx, args[0]); ok {
		return cellvalue.Num(float64(col + 1))
	}
	return cellvalue.Err(cellvalue.ErrValue)
}

func fnROWS(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 1 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	table := array2D(ctx, args[0])
	return cellvalue.Num(float64(len(table)))
}

func fnCOLUMNS(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 1 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	table := array2D(ctx, args[0])
	if len(table) == 0 {
		return cellvalue.Num(0)
	}
	return cellvalue.Num(float64(len(table[0])))
}

func fnINDIRECT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 1 || len(args) > 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	text, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	target, err := ctx.ParseIndirect(text)
	if err != nil {
		return cellvalue.Err(cellvalue.ErrRef)
	}
	return Eval(ctx, target)
}

func fnOFFSET(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 || len(args) > 5 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	shName, baseRow, baseCol, ok := refArgCoords(ctx, args[0])
	if !ok {
		return cellvalue.Err(cellvalue.ErrRef)
	}
	rowOff, errVal, ok := numArg(ctx, args[1])
	if !ok {
		return errVal
	}
	colOff, errVal, ok := numArg(ctx, args[2])
	if !ok {
		return errVal
	}
	height, width := 1.0, 1.0
	if len(args) >= 4 {
		height, errVal, ok = numArg(ctx, args[3])
		if !ok {
			return errVal
		}
	}
	if len(args) == 5 {
		width, errVal, ok = numArg(ctx, args[4])
		if !ok {
			return errVal
		}
	}
	newRow := baseRow + int(rowOff)
	newCol := baseCol + int(colOff)
	lastRow := newRow + int(height) - 1
	lastCol := newCol + int(width) - 1
	if newRow < 0 || newCol < 0 || height <= 0 || width <= 0 ||
		lastRow >= sheet.MaxRows || lastCol >= sheet.MaxCols {
		return cellvalue.Err(cellvalue.ErrRef)
	}
	if height == 1 && width == 1 {
		return ctx.Resolve(&ast.CellRef{Sheet: shName, Row: newRow, Col: newCol})
	}
	rng := &ast.RangeRef{
		Sheet: shName,
		From:  ast.CellRef{Sheet: shName, Row: newRow, Col: newCol},
		To:    ast.CellRef{Sheet: shName, Row: lastRow, Col: lastCol},
	}
	return cellvalue.Arr(ctx.ResolveRange(rng))
}
