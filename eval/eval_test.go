package eval

import (
	"fmt"
	"testing"
	"time"

	"gridcore/ast"
	"gridcore/cellvalue"
	"gridcore/parser"
)

// testContext is a minimal in-memory Context used to exercise the
// evaluator without involving the sheet/graph packages.
type testContext struct {
	sheet string
	row   int
	col   int
	cells map[string]cellvalue.Value
	names map[string]ast.Expr
	now   time.Time
	dims  map[string][2]int
}

func newTestContext() *testContext {
	return &testContext{
		sheet: "Sheet1",
		cells: map[string]cellvalue.Value{},
		names: map[string]ast.Expr{},
		now:   time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		dims:  map[string][2]int{},
	}
}

func key(sheet string, row, col int) string { return fmt.Sprintf("%s!%d,%d", sheet, row, col) }

func (c *testContext) set(sheet string, row, col int, v cellvalue.Value) {
	c.cells[key(sheet, row, col)] = v
}

func (c *testContext) Resolve(ref *ast.CellRef) cellvalue.Value {
	sheet := ref.Sheet
	if sheet == "" {
		sheet = c.sheet
	}
	if v, ok := c.cells[key(sheet, ref.Row, ref.Col)]; ok {
		return v
	}
	return cellvalue.EmptyVal()
}

func (c *testContext) ResolveRange(rng *ast.RangeRef) [][]cellvalue.Value {
	r1, r2 := rng.From.Row, rng.To.Row
	c1, c2 := rng.From.Col, rng.To.Col
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if c1 > c2 {
		c1, c2 = c2, c1
	}
	out := make([][]cellvalue.Value, 0, r2-r1+1)
	for r := r1; r <= r2; r++ {
		row := make([]cellvalue.Value, 0, c2-c1+1)
		for cc := c1; cc <= c2; cc++ {
			row = append(row, c.Resolve(&ast.CellRef{Sheet: rng.Sheet, Row: r, Col: cc}))
		}
		out = append(out, row)
	}
	return out
}

func (c *testContext) ResolveName(name string) (ast.Expr, bool) {
	n, ok := c.names[name]
	return n, ok
}

func (c *testContext) Sheet() string    { return c.sheet }
func (c *testContext) Cell() (int, int) { return c.row, c.col }
func (c *testContext) Now() time.Time   { return c.now }
func (c *testContext) ParseIndirect(text string) (ast.Expr, error) {
	return parser.Parse("="+text, c.sheet)
}
func (c *testContext) SheetDims(sheet string) (int, int) {
	d := c.dims[sheet]
	return d[0], d[1]
}

func evalSrc(t *testing.T, ctx *testContext, src string) cellvalue.Value {
	t.Helper()
	expr, err := parser.Parse(src, ctx.sheet)
	if err != nil {
		t.Fatalf("parse error for %q: %v", src, err)
	}
	return Eval(ctx, expr)
}

func TestEvalArithmetic(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, "=1+2*3")
	if v.Tag != cellvalue.VNumber || v.Num != 7 {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalDivideByZero(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, "=1/0")
	if v.Tag != cellvalue.VError || v.Err != cellvalue.ErrDivZero {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalSumRange(t *testing.T) {
	ctx := newTestContext()
	ctx.set("Sheet1", 0, 0, cellvalue.Num(1))
	ctx.set("Sheet1", 1, 0, cellvalue.Num(2))
	ctx.set("Sheet1", 2, 0, cellvalue.Num(3))
	v := evalSrc(t, ctx, "=SUM(A1:A3)")
	if v.Num != 6 {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalIfLazyBranches(t *testing.T) {
	ctx := newTestContext()
	ctx.set("Sheet1", 0, 0, cellvalue.Num(0))
	v := evalSrc(t, ctx, "=IF(A1=0, 1, 1/A1)")
	if v.Num != 1 {
		t.Fatalf("expected untaken branch to avoid division error, got %+v", v)
	}
}

func TestEvalVlookupExact(t *testing.T) {
	ctx := newTestContext()
	ctx.set("Sheet1", 0, 0, cellvalue.Txt("a"))
	ctx.set("Sheet1", 0, 1, cellvalue.Num(10))
	ctx.set("Sheet1", 1, 0, cellvalue.Txt("b"))
	ctx.set("Sheet1", 1, 1, cellvalue.Num(20))
	v := evalSrc(t, ctx, `=VLOOKUP("b", A1:B2, 2, FALSE)`)
	if v.Num != 20 {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalVlookupNotFound(t *testing.T) {
	ctx := newTestContext()
	ctx.set("Sheet1", 0, 0, cellvalue.Txt("a"))
	v := evalSrc(t, ctx, `=VLOOKUP("z", A1:A1, 1, FALSE)`)
	if v.Tag != cellvalue.VError || v.Err != cellvalue.ErrNA {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalSumifWildcard(t *testing.T) {
	ctx := newTestContext()
	ctx.set("Sheet1", 0, 0, cellvalue.Txt("apple"))
	ctx.set("Sheet1", 1, 0, cellvalue.Txt("banana"))
	ctx.set("Sheet1", 0, 1, cellvalue.Num(5))
	ctx.set("Sheet1", 1, 1, cellvalue.Num(7))
	v := evalSrc(t, ctx, `=SUMIF(A1:A2, "a*", B1:B2)`)
	if v.Num != 5 {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalStringConcat(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, `="foo" & "bar"`)
	if v.Str != "foobar" {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalNamedRangeUnresolved(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, "=Revenue+1")
	if v.Tag != cellvalue.VError || v.Err != cellvalue.ErrName {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalDateRoundTrip(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, "=YEAR(DATE(2024,3,15))")
	if v.Num != 2024 {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalSequenceSpill(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, "=SEQUENCE(2,2)")
	if v.Tag != cellvalue.VArray || !v.Spills() {
		t.Fatalf("expected spilling array, got %+v", v)
	}
	if v.Array[0][0].Num != 1 || v.Array[1][1].Num != 4 {
		t.Fatalf("unexpected sequence contents: %+v", v.Array)
	}
}

func TestEvalUnknownFunctionNameError(t *testing.T) {
	ctx := newTestContext()
	expr := &ast.FunctionCall{Name: "BOGUS"}
	v := Eval(ctx, expr)
	if v.Tag != cellvalue.VError || v.Err != cellvalue.ErrName {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalAtan2ZeroIsDivZero(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, "=ATAN2(0,0)")
	if v.Tag != cellvalue.VError || v.Err != cellvalue.ErrDivZero {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalDatedifYears(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, `=DATEDIF(DATE(2020,1,1),DATE(2024,3,15),"Y")`)
	if v.Num != 4 {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalAvgAliasesAverage(t *testing.T) {
	ctx := newTestContext()
	ctx.set("Sheet1", 0, 0, cellvalue.Num(2))
	ctx.set("Sheet1", 1, 0, cellvalue.Num(4))
	v := evalSrc(t, ctx, "=AVG(A1:A2)")
	if v.Num != 3 {
		t.Fatalf("got %+v", v)
	}
}

func TestEvalVarPPopulationVariance(t *testing.T) {
	ctx := newTestContext()
	v := evalSrc(t, ctx, "=VAR.P(2,4,4,4,5,5,7,9)")
	if v.Num != 4 {
		t.Fatalf("got %+v", v)
	}
}
