package eval

import (
	"gridcore/ast"
	"gridcore/cellvalue"
)

// array2D evaluates arg and returns its rectangle, treating a scalar
// result as a 1x1 rectangle so lookup/index code can share one path.
func array2D(ctx Context, arg ast.Expr) [][]cellvalue.Value {
	v := Eval(ctx, arg)
	if v.Tag == cellvalue.VArray {
		return v.Array
	}
	return [][]cellvalue.Value{{v.ToFlat()}}
}

func fnVLOOKUP(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 || len(args) > 4 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	target := Eval(ctx, args[0]).ToFlat()
	if target.IsError() {
		return target
	}
	table := array2D(ctx, args[1])
	colIdx, errVal, ok := numArg(ctx, args[2])
	if !ok {
		return errVal
	}
	exact := false
	if len(args) == 4 {
		v := Eval(ctx, args[3]).ToFlat()
		b, errKind, ok := cellvalue.ToBool(v)
		if !ok {
			return cellvalue.Err(errKind)
		}
		exact = !b
	}
	ci := int(colIdx) - 1
	if ci < 0 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	row := findLookupRow(table, target, 0, exact)
	if row < 0 {
		return cellvalue.Err(cellvalue.ErrNA)
	}
	if ci >= len(table[row]) {
		return cellvalue.Err(cellvalue.ErrRef)
	}
	return table[row][ci]
}

func fnHLOOKUP(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 || len(args) > 4 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	target := Eval(ctx, args[0]).ToFlat()
	if target.IsError() {
		return target
	}
	table := array2D(ctx, args[1])
	rowIdx, errVal, ok := numArg(ctx, args[2])
	if !ok {
		return errVal
	}
	exact := false
	if len(args) == 4 {
		v := Eval(ctx, args[3]).ToFlat()
		b, errKind, ok := cellvalue.ToBool(v)
		if !ok {
			return cellvalue.Err(errKind)
		}
		exact = !b
	}
	transposed := transpose(table)
	ri := int(rowIdx) - 1
	if ri < 0 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	col := findLookupRow(transposed, target, 0, exact)
	if col < 0 {
		return cellvalue.Err(cellvalue.ErrNA)
	}
	if ri >= len(transposed[col]) {
		return cellvalue.Err(cellvalue.ErrRef)
	}
	return transposed[col][ri]
}

// findLookupRow scans table for a match against target in column keyCol,
// implementing approximate match (largest value <= target, table
// assumed ascending) when exact is false, or exact equality otherwise.
func findLookupRow(table [][]cellvalue.Value, target cellvalue.Value, keyCol int, exact bool) int {
	if exact {
		for i, row := range table {
			if keyCol >= len(row) {
				continue
			}
			if cmp, _, ok := cellvalue.Compare(row[keyCol], target); ok && cmp == 0 {
				return i
			}
		}
		return -1
	}
	best := -1
	for i, row := range table {
		if keyCol >= len(row) {
			continue
		}
		cmp, _, ok := cellvalue.Compare(row[keyCol], target)
		if !ok {
			continue
		}
		if cmp <= 0 {
			best = i
		} else {
			break
		}
	}
	return best
}

func transpose(table [][]cellvalue.Value) [][]cellvalue.Value {
	if len(table) == 0 {
		return nil
	}
	cols := len(table[0])
	out := make([][]cellvalue.Value, cols)
	for c := 0; c < cols; c++ {
		out[c] = make([]cellvalue.Value, len(table))
		for r, row := range table {
			if c < len(row) {
				out[c][r] = row[c]
			} else {
				out[c][r] = cellvalue.EmptyVal()
			}
		}
	}
	return out
}

func fnXLOOKUP(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	target := Eval(ctx, args[0]).ToFlat()
	if target.IsError() {
		return target
	}
	lookupArr := array2D(ctx, args[1])
	returnArr := array2D(ctx, args[2])
	lookupFlat := flatten2D(lookupArr)
	returnFlat := flatten2D(returnArr)
	for i, v := range lookupFlat {
		if cmp, _, ok := cellvalue.Compare(v, target); ok && cmp == 0 {
			if i < len(returnFlat) {
				return returnFlat[i]
			}
			return cellvalue.Err(cellvalue.ErrRef)
		}
	}
	if len(args) >= 4 {
		return Eval(ctx, args[3])
	}
	return cellvalue.Err(cellvalue.ErrNA)
}

func flatten2D(table [][]cellvalue.Value) []cellvalue.Value {
	var out []cellvalue.Value
	for _, row := range table {
		out = append(out, row...)
	}
	return out
}

func fnINDEX(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 || len(args) > 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	table := array2D(ctx, args[0])
	rowNum, errVal, ok := numArg(ctx, args[1])
	if !ok {
		return errVal
	}
	colNum := 1.0
	if len(args) == 3 {
		colNum, errVal, ok = numArg(ctx, args[2])
		if !ok {
			return errVal
		}
	} else if len(table) == 1 {
		// Single-row range with one index argument addresses columns.
		colNum = rowNum
		rowNum = 1
	}
	ri, ci := int(rowNum)-1, int(colNum)-1
	if ri < 0 || ci < 0 || ri >= len(table) || ci >= len(table[ri]) {
		return cellvalue.Err(cellvalue.ErrRef)
	}
	return table[ri][ci]
}

func fnMATCH(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 || len(args) > 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	target := Eval(ctx, args[0]).ToFlat()
	if target.IsError() {
		return target
	}
	arr := flatten2D(array2D(ctx, args[1]))
	matchType := 1.0
	if len(args) == 3 {
		var errVal cellvalue.Value
		var ok bool
		matchType, errVal, ok = numArg(ctx, args[2])
		if !ok {
			return errVal
		}
	}
	switch {
	case matchType == 0:
		for i, v := range arr {
			if cmp, _, ok := cellvalue.Compare(v, target); ok && cmp == 0 {
				return cellvalue.Num(float64(i + 1))
			}
		}
		return cellvalue.Err(cellvalue.ErrNA)
	case matchType > 0:
		best := -1
		for i, v := range arr {
			cmp, _, ok := cellvalue.Compare(v, target)
			if !ok {
				continue
			}
			if cmp <= 0 {
				best = i
			} else {
				break
			}
		}
		if best < 0 {
			return cellvalue.Err(cellvalue.ErrNA)
		}
		return cellvalue.Num(float64(best + 1))
	default:
		best := -1
		for i, v := range arr {
			cmp, _, ok := cellvalue.Compare(v, target)
			if !ok {
				continue
			}
			if cmp >= 0 {
				best = i
			} else {
				break
			}
		}
		if best < 0 {
			return cellvalue.Err(cellvalue.ErrNA)
		}
		return cellvalue.Num(float64(best + 1))
	}
}

func fnCHOOSE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	idx, errVal, ok := numArg(ctx, args[0])
	if !ok {
		return errVal
	}
	i := int(idx)
	if i < 1 || i >= len(args) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	return Eval(ctx, args[i])
}

func fnLOOKUP(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 && len(args) != 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	target := Eval(ctx, args[0]).ToFlat()
	if target.IsError() {
		return target
	}
	lookupFlat := flatten2D(array2D(ctx, args[1]))
	returnFlat := lookupFlat
	if len(args) == 3 {
		returnFlat = flatten2D(array2D(ctx, args[2]))
	}
	best := -1
	for i, v := range lookupFlat {
		cmp, _, ok := cellvalue.Compare(v, target)
		if !ok {
			continue
		}
		if cmp <= 0 {
			best = i
		} else {
			break
		}
	}
	if best < 0 || best >= len(returnFlat) {
		return cellvalue.Err(cellvalue.ErrNA)
	}
	return returnFlat[best]
}
