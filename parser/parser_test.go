package parser

import (
	"testing"

	"gridcore/ast"
)

func TestParseArithmeticPrecedence(t *testing.T) {
	expr, err := Parse("=1+2*3", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bin, ok := expr.(*ast.BinaryOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %T", expr)
	}
	rhs, ok := bin.Right.(*ast.BinaryOp)
	if !ok || rhs.Op != "*" {
		t.Fatalf("expected '*' nested on the right, got %T", bin.Right)
	}
}

func TestParsePowerRightAssociative(t *testing.T) {
	expr, err := Parse("=2^3^2", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bin := expr.(*ast.BinaryOp)
	if bin.Op != "^" {
		t.Fatalf("expected '^', got %s", bin.Op)
	}
	if _, ok := bin.Right.(*ast.BinaryOp); !ok {
		t.Fatalf("expected right-associative nesting, got %T", bin.Right)
	}
}

func TestParseUnaryMinusBindsLooserThanPower(t *testing.T) {
	expr, err := Parse("=-2^2", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unary, ok := expr.(*ast.UnaryOp)
	if !ok || unary.Op != "-" {
		t.Fatalf("expected top-level unary minus, got %T", expr)
	}
	if _, ok := unary.Operand.(*ast.BinaryOp); !ok {
		t.Fatalf("expected ^ nested inside unary minus, got %T", unary.Operand)
	}
}

func TestParseCellReference(t *testing.T) {
	expr, err := Parse("=$A$1", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ref, ok := expr.(*ast.CellRef)
	if !ok {
		t.Fatalf("expected *ast.CellRef, got %T", expr)
	}
	if ref.Col != 0 || ref.Row != 0 || !ref.ColAbs || !ref.RowAbs {
		t.Errorf("unexpected ref: %+v", ref)
	}
}

func TestParseRange(t *testing.T) {
	expr, err := Parse("=SUM(A1:B10)", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := expr.(*ast.FunctionCall)
	if call.Name != "SUM" {
		t.Fatalf("expected SUM, got %s", call.Name)
	}
	rng, ok := call.Args[0].(*ast.RangeRef)
	if !ok {
		t.Fatalf("expected *ast.RangeRef arg, got %T", call.Args[0])
	}
	if rng.From.Col != 0 || rng.From.Row != 0 || rng.To.Col != 1 || rng.To.Row != 9 {
		t.Errorf("unexpected range: %+v", rng)
	}
}

func TestParseSheetQualifiedReference(t *testing.T) {
	expr, err := Parse("=Sheet2!B3", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ref := expr.(*ast.CellRef)
	if ref.Sheet != "Sheet2" || ref.Col != 1 || ref.Row != 2 {
		t.Errorf("unexpected ref: %+v", ref)
	}
}

func TestParseNamedRange(t *testing.T) {
	expr, err := Parse("=Revenue*2", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bin := expr.(*ast.BinaryOp)
	if _, ok := bin.Left.(*ast.NamedRangeRef); !ok {
		t.Fatalf("expected named range on the left, got %T", bin.Left)
	}
}

func TestParseFunctionArgs(t *testing.T) {
	expr, err := Parse(`=IF(A1>0, "pos", "non-pos")`, "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := expr.(*ast.FunctionCall)
	if call.Name != "IF" || len(call.Args) != 3 {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestParseArrayLiteral(t *testing.T) {
	expr, err := Parse("={1,2;3,4}", "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lit := expr.(*ast.ArrayLit)
	if len(lit.Rows) != 2 || len(lit.Rows[0]) != 2 {
		t.Fatalf("unexpected array shape: %+v", lit)
	}
}

func TestParseErrorOnTrailingTokens(t *testing.T) {
	if _, err := Parse("=1 2", "Sheet1"); err == nil {
		t.Fatal("expected trailing-token error")
	}
}

func TestParseErrorOnUnknownPrefix(t *testing.T) {
	if _, err := Parse("=*1", "Sheet1"); err == nil {
		t.Fatal("expected error for leading '*'")
	}
}
