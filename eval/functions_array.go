package eval

import (
	"sort"

	"gridcore/ast"
	"gridcore/cellvalue"
)

func fnFILTER(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 || len(args) > 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	data := array2D(ctx, args[0])
	maskFlat := flatten2D(array2D(ctx, args[1]))
	if len(maskFlat) != len(data) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	var rows [][]cellvalue.Value
	for i, row := range data {
		if i >= len(maskFlat) {
			break
		}
		keep, errKind, ok := cellvalue.ToBool(maskFlat[i])
		if !ok {
			return cellvalue.Err(errKind)
		}
		if keep {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		if len(args) == 3 {
			return Eval(ctx, args[2])
		}
		return cellvalue.Err(cellvalue.ErrCalcUnwind)
	}
	return cellvalue.Arr(rows)
}

func fnSORT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 1 || len(args) > 4 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	data := array2D(ctx, args[0])
	sortCol := 0
	if len(args) >= 2 {
		n, errVal, ok := numArg(ctx, args[1])
		if !ok {
			return errVal
		}
		sortCol = int(n) - 1
	}
	ascending := true
	if len(args) >= 3 {
		n, errVal, ok := numArg(ctx, args[2])
		if !ok {
			return errVal
		}
		ascending = n >= 0
	}
	rows := append([][]cellvalue.Value(nil), data...)
	sort.SliceStable(rows, func(i, j int) bool {
		if sortCol >= len(rows[i]) || sortCol >= len(rows[j]) {
			return false
		}
		cmp, _, ok := cellvalue.Compare(rows[i][sortCol], rows[j][sortCol])
		if !ok {
			return false
		}
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	return cellvalue.Arr(rows)
}

func fnSORTBY(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	data := array2D(ctx, args[0])
	keys := flatten2D(array2D(ctx, args[1]))
	if len(keys) != len(data) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	ascending := true
	if len(args) >= 3 {
		n, errVal, ok := numArg(ctx, args[2])
		if !ok {
			return errVal
		}
		ascending = n >= 0
	}
	idx := make([]int, len(data))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		cmp, _, ok := cellvalue.Compare(keys[idx[i]], keys[idx[j]])
		if !ok {
			return false
		}
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	rows := make([][]cellvalue.Value, len(data))
	for i, srcIdx := range idx {
		rows[i] = data[srcIdx]
	}
	return cellvalue.Arr(rows)
}

func fnUNIQUE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 1 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	data := array2D(ctx, args[0])
	seen := map[string]bool{}
	var rows [][]cellvalue.Value
	for _, row := range data {
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, row)
	}
	return cellvalue.Arr(rows)
}

func rowKey(row []cellvalue.Value) string {
	var b []byte
	for _, v := range row {
		s, _, _ := cellvalue.ToText(v)
		b = append(b, byte(v.Tag))
		b = append(b, s...)
		b = append(b, 0)
	}
	return string(b)
}

func fnSEQUENCE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 1 || len(args) > 4 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	rowsN, errVal, ok := numArg(ctx, args[0])
	if !ok {
		return errVal
	}
	colsN := 1.0
	if len(args) >= 2 {
		colsN, errVal, ok = numArg(ctx, args[1])
		if !ok {
			return errVal
		}
	}
	start := 1.0
	if len(args) >= 3 {
		start, errVal, ok = numArg(ctx, args[2])
		if !ok {
			return errVal
		}
	}
	step := 1.0
	if len(args) == 4 {
		step, errVal, ok = numArg(ctx, args[3])
		if !ok {
			return errVal
		}
	}
	if rowsN <= 0 || colsN <= 0 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	rows := make([][]cellvalue.Value, int(rowsN))
	v := start
	for r := 0; r < int(rowsN); r++ {
		row := make([]cellvalue.Value, int(colsN))
		for c := 0; c < int(colsN); c++ {
			row[c] = cellvalue.Num(v)
			v += step
		}
		rows[r] = row
	}
	return cellvalue.Arr(rows)
}

func fnTRANSPOSE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 1 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	data := array2D(ctx, args[0])
	return cellvalue.Arr(transpose(data))
}
