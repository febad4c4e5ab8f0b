package eval

import (
	"gridcore/ast"
	"gridcore/cellvalue"
)

func fnIF(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 || len(args) > 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	cond := Eval(ctx, args[0]).ToFlat()
	if cond.IsError() {
		return cond
	}
	b, errKind, ok := cellvalue.ToBool(cond)
	if !ok {
		return cellvalue.Err(errKind)
	}
	if b {
		return Eval(ctx, args[1])
	}
	if len(args) == 3 {
		return Eval(ctx, args[2])
	}
	return cellvalue.Bln(false)
}

func fnIFS(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) == 0 || len(args)%2 != 0 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	for i := 0; i+1 < len(args); i += 2 {
		cond := Eval(ctx, args[i]).ToFlat()
		if cond.IsError() {
			return cond
		}
		b, errKind, ok := cellvalue.ToBool(cond)
		if !ok {
			return cellvalue.Err(errKind)
		}
		if b {
			return Eval(ctx, args[i+1])
		}
	}
	return cellvalue.Err(cellvalue.ErrNA)
}

func fnAND(ctx Context, args []ast.Expr) cellvalue.Value {
	result := true
	any := false
	for _, a := range args {
		for _, v := range flattenArg(ctx, a) {
			if v.IsError() {
				return v
			}
			if v.IsEmpty() {
				continue
			}
			b, errKind, ok := cellvalue.ToBool(v)
			if !ok {
				return cellvalue.Err(errKind)
			}
			any = true
			result = result && b
		}
	}
	if !any {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	return cellvalue.Bln(result)
}

func fnOR(ctx Context, args []ast.Expr) cellvalue.Value {
	result := false
	any := false
	for _, a := range args {
		for _, v := range flattenArg(ctx, a) {
			if v.IsError() {
				return v
			}
			if v.IsEmpty() {
				continue
			}
			b, errKind, ok := cellvalue.ToBool(v)
			if !ok {
				return cellvalue.Err(errKind)
			}
			any = true
			result = result || b
		}
	}
	if !any {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	return cellvalue.Bln(result)
}

func fnXOR(ctx Context, args []ast.Expr) cellvalue.Value {
	count := 0
	for _, a := range args {
		for _, v := range flattenArg(ctx, a) {
			if v.IsError() {
				return v
			}
			if v.IsEmpty() {
				continue
			}
			b, errKind, ok := cellvalue.ToBool(v)
			if !ok {
				return cellvalue.Err(errKind)
			}
			if b {
				count++
			}
		}
	}
	return cellvalue.Bln(count%2 == 1)
}

func fnNOT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 1 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	v := Eval(ctx, args[0]).ToFlat()
	if v.IsError() {
		return v
	}
	b, errKind, ok := cellvalue.ToBool(v)
	if !ok {
		return cellvalue.Err(errKind)
	}
	return cellvalue.Bln(!b)
}

func fnIFERROR(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	v := Eval(ctx, args[0]).ToFlat()
	if v.IsError() {
		return Eval(ctx, args[1])
	}
	return v
}

func fnIFNA(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	v := Eval(ctx, args[0]).ToFlat()
	if v.Tag == cellvalue.VError && v.Err == cellvalue.ErrNA {
		return Eval(ctx, args[1])
	}
	return v
}

func fnSWITCH(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	target := Eval(ctx, args[0]).ToFlat()
	if target.IsError() {
		return target
	}
	i := 1
	for ; i+1 < len(args); i += 2 {
		candidate := Eval(ctx, args[i]).ToFlat()
		cmp, _, ok := cellvalue.Compare(target, candidate)
		if ok && cmp == 0 {
			return Eval(ctx, args[i+1])
		}
	}
	if i < len(args) {
		return Eval(ctx, args[i])
	}
	return cellvalue.Err(cellvalue.ErrNA)
}

func fnISERROR(ctx Context, args []ast.Expr) cellvalue.Value {
	return cellvalue.Bln(Eval(ctx, args[0]).ToFlat().IsError())
}

func fnISNA(ctx Context, args []ast.Expr) cellvalue.Value {
	v := Eval(ctx, args[0]).ToFlat()
	return cellvalue.Bln(v.Tag == cellvalue.VError && v.Err == cellvalue.ErrNA)
}

func fnISBLANK(ctx Context, args []ast.Expr) cellvalue.Value {
	return cellvalue.Bln(Eval(ctx, args[0]).ToFlat().IsEmpty())
}

func fnISNUMBER(ctx Context, args []ast.Expr) cellvalue.Value {
	return cellvalue.Bln(Eval(ctx, args[0]).ToFlat().Tag == cellvalue.VNumber)
}

func fnISTEXT(ctx Context, args []ast.Expr) cellvalue.Value {
	return cellvalue.Bln(Eval(ctx, args[0]).ToFlat().Tag == cellvalue.VText)
}

func fnISLOGICAL(ctx Context, args []ast.Expr) cellvalue.Value {
	return cellvalue.Bln(Eval(ctx, args[0]).ToFlat().Tag == cellvalue.VBoolean)
}

func fnISEVEN(ctx Context, args []ast.Expr) cellvalue.Value {
	v := Eval(ctx, args[0]).ToFlat()
	n, errKind, ok := cellvalue.ToNumber(v)
	if !ok {
		return cellvalue.Err(errKind)
	}
	return cellvalue.Bln(int64(n)%2 == 0)
}

func fnISODD(ctx Context, args []ast.Expr) cellvalue.Value {
	v := Eval(ctx, args[0]).ToFlat()
	n, errKind, ok := cellvalue.ToNumber(v)
	if !ok {
		return cellvalue.Err(errKind)
	}
	return cellvalue.Bln(int64(n)%2 != 0)
}

func fnERRORTYPE(ctx Context, args []ast.Expr) cellvalue.Value {
	v := Eval(ctx, args[0]).ToFlat()
	if !v.IsError() {
		return cellvalue.Err(cellvalue.ErrNA)
	}
	codes := map[cellvalue.ErrorKind]float64{
		cellvalue.ErrNull: 1, cellvalue.ErrDivZero: 2, cellvalue.ErrValue: 3,
		cellvalue.ErrRef: 4, cellvalue.ErrName: 5, cellvalue.ErrNum: 6, cellvalue.ErrNA: 7,
	}
	if code, ok := codes[v.Err]; ok {
		return cellvalue.Num(code)
	}
	return cellvalue.Num(8)
}

func fnNA(ctx Context, args []ast.Expr) cellvalue.Value {
	return cellvalue.Err(cellvalue.ErrNA)
}
