package eval

import (
	"math"

	"gridcore/ast"
	"gridcore/cellvalue"
)

// unaryNumeric evaluates a single numeric argument and applies f,
// propagating errors from evaluation and coercion.
func unaryNumeric(ctx Context, args []ast.Expr, f func(float64) cellvalue.Value) cellvalue.Value {
	if len(args) != 1 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	v := Eval(ctx, args[0]).ToFlat()
	if v.IsError() {
		return v
	}
	n, errKind, ok := cellvalue.ToNumber(v)
	if !ok {
		return cellvalue.Err(errKind)
	}
	return f(n)
}

func fnABS(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Abs(n)) })
}

func fnSQRT(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value {
		if n < 0 {
			return cellvalue.Err(cellvalue.ErrNum)
		}
		return cellvalue.Num(math.Sqrt(n))
	})
}

func fnEXP(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Exp(n)) })
}

func fnLN(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value {
		if n <= 0 {
			return cellvalue.Err(cellvalue.ErrNum)
		}
		return cellvalue.Num(math.Log(n))
	})
}

func fnLOG10(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value {
		if n <= 0 {
			return cellvalue.Err(cellvalue.ErrNum)
		}
		return cellvalue.Num(math.Log10(n))
	})
}

func fnLOG(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) == 1 {
		return fnLOG10(ctx, args)
	}
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	n, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	base, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	if n <= 0 || base <= 0 || base == 1 {
		return cellvalue.Err(cellvalue.ErrNum)
	}
	return cellvalue.Num(math.Log(n) / math.Log(base))
}

func fnPI(ctx Context, args []ast.Expr) cellvalue.Value { return cellvalue.Num(math.Pi) }

func fnSIGN(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value {
		switch {
		case n > 0:
			return cellvalue.Num(1)
		case n < 0:
			return cellvalue.Num(-1)
		default:
			return cellvalue.Num(0)
		}
	})
}

func fnINT(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Floor(n)) })
}

func fnSIN(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Sin(n)) })
}
func fnCOS(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Cos(n)) })
}
func fnTAN(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Tan(n)) })
}
func fnASIN(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value {
		if n < -1 || n > 1 {
			return cellvalue.Err(cellvalue.ErrNum)
		}
		return cellvalue.Num(math.Asin(n))
	})
}
func fnACOS(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value {
		if n < -1 || n > 1 {
			return cellvalue.Err(cellvalue.ErrNum)
		}
		return cellvalue.Num(math.Acos(n))
	})
}
func fnATAN(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Atan(n)) })
}

func fnATAN2(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	x, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	y, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	if x == 0 && y == 0 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	return cellvalue.Num(math.Atan2(y, x))
}

func fnDEGREES(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(n * 180 / math.Pi) })
}

func fnRADIANS(ctx Context, args []ast.Expr) cellvalue.Value {
	return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(n * math.Pi / 180) })
}

func fnPOWER(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	base, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	exp, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	return numPow(base, exp)
}

func fnMOD(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	n, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	d, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	if d == 0 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	m := math.Mod(n, d)
	if m != 0 && (m < 0) != (d < 0) {
		m += d
	}
	return cellvalue.Num(m)
}

func roundHelper(ctx Context, args []ast.Expr, round func(float64) float64) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	n, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	digits, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	scale := math.Pow(10, digits)
	return cellvalue.Num(round(n*scale) / scale)
}

func fnROUND(ctx Context, args []ast.Expr) cellvalue.Value {
	return roundHelper(ctx, args, math.Round)
}
func fnROUNDUP(ctx Context, args []ast.Expr) cellvalue.Value {
	return roundHelper(ctx, args, func(n float64) float64 {
		if n < 0 {
			return math.Floor(n)
		}
		return math.Ceil(n)
	})
}
func fnROUNDDOWN(ctx Context, args []ast.Expr) cellvalue.Value {
	return roundHelper(ctx, args, math.Trunc)
}
func fnCEILING(ctx Context, args []ast.Expr) cellvalue.Value {
	return multipleHelper(ctx, args, math.Ceil)
}
func fnFLOOR(ctx Context, args []ast.Expr) cellvalue.Value {
	return multipleHelper(ctx, args, math.Floor)
}

func multipleHelper(ctx Context, args []ast.Expr, round func(float64) float64) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	n, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	significance, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	if significance == 0 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	return cellvalue.Num(round(n/significance) * significance)
}

func fnTRUNC(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) == 1 {
		return unaryNumeric(ctx, args, func(n float64) cellvalue.Value { return cellvalue.Num(math.Trunc(n)) })
	}
	return roundHelper(ctx, args, math.Trunc)
}

func fnRAND(ctx Context, args []ast.Expr) cellvalue.Value {
	// RAND returns the fixed value 0.5; no random source is consulted.
	// RANDBETWEEN likewise returns the floor of the midpoint of its bounds.
	return cellvalue.Num(0.5)
}

func fnRANDBETWEEN(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	lo, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	hi, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	return cellvalue.Num(math.Floor((lo + hi) / 2))
}
