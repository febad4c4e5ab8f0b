// Package eval implements the formula evaluator: a tree-walking
// interpreter over ast.Expr that produces cellvalue.Value results,
// together with the built-in function library dispatched by name.
package eval

import (
	"math"
	"strings"
	"time"

	"gridcore/ast"
	"gridcore/cellvalue"
)

// Context is the evaluator's view of the workbook. A single Context is
// built per formula evaluation, scoped to the cell being recomputed.
type Context interface {
	// Resolve returns the current value of a single cell.
	Resolve(ref *ast.CellRef) cellvalue.Value
	// ResolveRange returns the rectangle of values a RangeRef denotes,
	// normalized row-major regardless of which corners were given.
	ResolveRange(rng *ast.RangeRef) [][]cellvalue.Value
	// ResolveName expands a named range into the CellRef/RangeRef it
	// stands for, or ok=false if the name is undefined.
	ResolveName(name string) (ast.Expr, bool)
	// Sheet is the sheet containing the cell currently being evaluated,
	// used to resolve unqualified references and no-arg ROW()/COLUMN().
	Sheet() string
	// Cell is the (row, col) of the cell currently being evaluated.
	Cell() (row, col int)
	// Now is the evaluator's injected clock, used by NOW/TODAY so tests
	// are deterministic and evaluation never reads the system clock
	// directly.
	Now() time.Time
	// ParseIndirect resolves a text reference (e.g. "Sheet2!B3") built at
	// runtime by INDIRECT into an ast.Expr, or returns an error.
	ParseIndirect(text string) (ast.Expr, error)
	// SheetDims returns the populated extent of a sheet. None of the
	// built-in functions call it; OFFSET bounds its result by
	// sheet.MaxRows and sheet.MaxCols instead.
	SheetDims(sheet string) (rows, cols int)
}

// Fn is a built-in function implementation. Functions receive their
// unevaluated argument expressions so that short-circuiting functions
// (IF, IFERROR, AND/OR's error propagation order) control exactly when
// and whether each argument is evaluated.
type Fn func(ctx Context, args []ast.Expr) cellvalue.Value

// Eval evaluates any formula AST node to a runtime Value.
func Eval(ctx Context, node ast.Expr) cellvalue.Value {
	switch n := node.(type) {
	case *ast.NumberLit:
		return cellvalue.Num(n.Value)
	case *ast.TextLit:
		return cellvalue.Txt(n.Value)
	case *ast.BoolLit:
		return cellvalue.Bln(n.Value)
	case *ast.CellRef:
		return ctx.Resolve(n)
	case *ast.RangeRef:
		return cellvalue.Arr(ctx.ResolveRange(n))
	case *ast.NamedRangeRef:
		target, ok := ctx.ResolveName(n.Name)
		if !ok {
			return cellvalue.Err(cellvalue.ErrName)
		}
		return Eval(ctx, target)
	case *ast.UnaryOp:
		return evalUnary(ctx, n)
	case *ast.BinaryOp:
		return evalBinary(ctx, n)
	case *ast.FunctionCall:
		return evalCall(ctx, n)
	case *ast.ArrayLit:
		return evalArrayLit(ctx, n)
	default:
		return cellvalue.Err(cellvalue.ErrValue)
	}
}

func evalUnary(ctx Context, n *ast.UnaryOp) cellvalue.Value {
	v := Eval(ctx, n.Operand).ToFlat()
	if v.IsError() {
		return v
	}
	num, errKind, ok := cellvalue.ToNumber(v)
	if !ok {
		return cellvalue.Err(errKind)
	}
	switch n.Op {
	case "-":
		return cellvalue.Num(-num)
	case "%":
		return cellvalue.Num(num / 100)
	default:
		return cellvalue.Err(cellvalue.ErrValue)
	}
}

func evalBinary(ctx Context, n *ast.BinaryOp) cellvalue.Value {
	left := Eval(ctx, n.Left).ToFlat()
	right := Eval(ctx, n.Right).ToFlat()

	switch n.Op {
	case "=", "<>", "<", ">", "<=", ">=":
		return evalComparison(n.Op, left, right)
	case "&":
		if left.IsError() {
			return left
		}
		if right.IsError() {
			return right
		}
		ls, errKind, ok := cellvalue.ToText(left)
		if !ok {
			return cellvalue.Err(errKind)
		}
		rs, errKind, ok := cellvalue.ToText(right)
		if !ok {
			return cellvalue.Err(errKind)
		}
		return cellvalue.Txt(ls + rs)
	}

	if left.IsError() {
		return left
	}
	if right.IsError() {
		return right
	}
	ln, errKind, ok := cellvalue.ToNumber(left)
	if !ok {
		return cellvalue.Err(errKind)
	}
	rn, errKind, ok := cellvalue.ToNumber(right)
	if !ok {
		return cellvalue.Err(errKind)
	}
	switch n.Op {
	case "+":
		return cellvalue.Num(ln + rn)
	case "-":
		return cellvalue.Num(ln - rn)
	case "*":
		return cellvalue.Num(ln * rn)
	case "/":
		if rn == 0 {
			return cellvalue.Err(cellvalue.ErrDivZero)
		}
		return cellvalue.Num(ln / rn)
	case "^":
		return numPow(ln, rn)
	default:
		return cellvalue.Err(cellvalue.ErrValue)
	}
}

func evalComparison(op string, left, right cellvalue.Value) cellvalue.Value {
	cmp, errKind, ok := cellvalue.Compare(left, right)
	if !ok {
		return cellvalue.Err(errKind)
	}
	var result bool
	switch op {
	case "=":
		result = cmp == 0
	case "<>":
		result = cmp != 0
	case "<":
		result = cmp < 0
	case ">":
		result = cmp > 0
	case "<=":
		result = cmp <= 0
	case ">=":
		result = cmp >= 0
	}
	return cellvalue.Bln(result)
}

func evalCall(ctx Context, n *ast.FunctionCall) cellvalue.Value {
	fn, ok := dispatch[n.Name]
	if !ok {
		return cellvalue.Err(cellvalue.ErrName)
	}
	return fn(ctx, n.Args)
}

func evalArrayLit(ctx Context, n *ast.ArrayLit) cellvalue.Value {
	rows := make([][]cellvalue.Value, len(n.Rows))
	for i, row := range n.Rows {
		out := make([]cellvalue.Value, len(row))
		for j, cell := range row {
			out[j] = Eval(ctx, cell).ToFlat()
		}
		rows[i] = out
	}
	return cellvalue.Arr(rows)
}

// argValues evaluates each argument expression to a flat scalar,
// stopping at (and returning) the first error encountered.
func argValues(ctx Context, args []ast.Expr) ([]cellvalue.Value, cellvalue.Value, bool) {
	out := make([]cellvalue.Value, 0, len(args))
	for _, a := range args {
		v := Eval(ctx, a).ToFlat()
		if v.IsError() {
			return nil, v, false
		}
		out = append(out, v)
	}
	return out, cellvalue.Value{}, true
}

// flattenArg evaluates a single argument and flattens it (range/array
// or scalar) into a slice of scalar values, used by aggregate functions
// that accept ranges.
func flattenArg(ctx Context, arg ast.Expr) []cellvalue.Value {
	v := Eval(ctx, arg)
	if v.Tag != cellvalue.VArray {
		return []cellvalue.Value{v}
	}
	var out []cellvalue.Value
	for _, row := range v.Array {
		out = append(out, row...)
	}
	return out
}

// matchesCriterion implements the SUMIF/COUNTIF-family criterion
// grammar: a bare value means equality, a leading comparison operator
// (=,<>,<,>,<=,>=) compares numerically/lexically, and '*'/'?' act as
// text wildcards when no operator is present.
func matchesCriterion(cell cellvalue.Value, criterion cellvalue.Value) bool {
	critText, _, ok := cellvalue.ToText(criterion)
	if !ok {
		return false
	}
	for _, op := range []string{"<>", "<=", ">=", "=", "<", ">"} {
		if strings.HasPrefix(critText, op) {
			rhsText := strings.TrimPrefix(critText, op)
			rhs := cellvalue.Classify(rhsText)
			rhsVal := storedToValue(rhs)
			cmp, _, ok := cellvalue.Compare(cell, rhsVal)
			if !ok {
				return false
			}
			switch op {
			case "=":
				return cmp == 0
			case "<>":
				return cmp != 0
			case "<":
				return cmp < 0
			case ">":
				return cmp > 0
			case "<=":
				return cmp <= 0
			case ">=":
				return cmp >= 0
			}
		}
	}
	if strings.ContainsAny(critText, "*?") {
		return wildcardMatch(strings.ToUpper(critText), textOf(cell))
	}
	critVal := storedToValue(cellvalue.Classify(critText))
	cmp, _, ok := cellvalue.Compare(cell, critVal)
	return ok && cmp == 0
}

func textOf(v cellvalue.Value) string {
	s, _, _ := cellvalue.ToText(v)
	return strings.ToUpper(s)
}

func storedToValue(s cellvalue.Stored) cellvalue.Value {
	return cellvalue.ValueFromStored(s)
}

// wildcardMatch implements '*' (any run) and '?' (single char) glob
// matching, case-insensitive, with no escaping support.
func wildcardMatch(pattern, text string) bool {
	return wildcardMatchRec(pattern, text)
}

func wildcardMatchRec(p, s string) bool {
	if p == "" {
		return s == ""
	}
	if p[0] == '*' {
		if wildcardMatchRec(p[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if wildcardMatchRec(p[1:], s[i+1:]) {
				return true
			}
		}
		return false
	}
	if s == "" {
		return false
	}
	if p[0] == '?' || p[0] == s[0] {
		return wildcardMatchRec(p[1:], s[1:])
	}
	return false
}

func numPow(base, exp float64) cellvalue.Value {
	v := math.Pow(base, exp)
	if math.IsNaN(v) { // e.g. negative base with fractional exponent
		return cellvalue.Err(cellvalue.ErrNum)
	}
	return cellvalue.Num(v)
}
