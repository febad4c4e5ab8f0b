package lexer

import (
	"testing"

	"gridcore/token"
)

func TestTokenizeBasics(t *testing.T) {
	toks, err := Tokenize(`=SUM(A1:A10, 3.5e2) & "hi""there"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []token.Type{
		token.FUNCTION, token.LPAREN, token.REFERENCE, token.COLON, token.REFERENCE,
		token.COMMA, token.NUMBER, token.RPAREN, token.AMP, token.STRING, token.EOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Type, w)
		}
	}
	if toks[9].Literal != `hi"there` {
		t.Errorf("escaped quote: got %q", toks[9].Literal)
	}
}

func TestTokenizeAbsoluteReference(t *testing.T) {
	toks, err := Tokenize("$A$1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != token.REFERENCE || toks[0].Literal != "$A$1" {
		t.Errorf("got %+v", toks[0])
	}
}

func TestTokenizeSheetQualifier(t *testing.T) {
	toks, err := Tokenize("Sheet1!A1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []token.Type{token.REFERENCE, token.BANG, token.REFERENCE, token.EOF}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Type, w)
		}
	}
}

func TestTokenizeBoolAndFunction(t *testing.T) {
	toks, err := Tokenize("IF(TRUE, 1, 2)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != token.FUNCTION || toks[0].Literal != "IF" {
		t.Errorf("got %+v", toks[0])
	}
	if toks[2].Type != token.BOOL {
		t.Errorf("expected BOOL, got %+v", toks[2])
	}
}

func TestTokenizeNamedRange(t *testing.T) {
	toks, err := Tokenize("MyRange + 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != token.IDENT {
		t.Errorf("expected IDENT, got %+v", toks[0])
	}
}

func TestTokenizeComparisonOperators(t *testing.T) {
	toks, err := Tokenize("A1<>B1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[1].Type != token.NE {
		t.Errorf("expected NE, got %+v", toks[1])
	}
}

func TestTokenizeUnterminatedString(t *testing.T) {
	if _, err := Tokenize(`"abc`); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestTokenizeDottedFunctionName(t *testing.T) {
	toks, err := Tokenize("STDEV.P(A1:A10)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != token.FUNCTION || toks[0].Literal != "STDEV.P" {
		t.Errorf("got %+v", toks[0])
	}
}
