// Package parser implements a Pratt (precedence-climbing) parser that
// turns a formula token stream into an ast.Expr, following the
// prefix/infix parse-function registration style of a hand-written
// recursive-descent expression parser.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"gridcore/ast"
	"gridcore/lexer"
	"gridcore/token"
)

// Precedence levels, lowest to highest. Ranges are not a general infix
// operator here: A1:B10 is recognized directly while parsing a
// reference primary, which is what gives ranges tighter-than-everything
// binding without an explicit precedence tier.
const (
	_ int = iota
	LOWEST
	COMPARISON // = <> < > <= >=
	CONCAT     // &
	SUM        // + -
	PRODUCT    // * /
	PREFIX     // unary -
	POWER      // ^
	POSTFIX    // %
	CALL       // f(...)
)

var precedences = map[token.Type]int{
	token.EQ:       COMPARISON,
	token.NE:       COMPARISON,
	token.LT:       COMPARISON,
	token.GT:       COMPARISON,
	token.LE:       COMPARISON,
	token.GE:       COMPARISON,
	token.AMP:      CONCAT,
	token.PLUS:     SUM,
	token.MINUS:    SUM,
	token.ASTERISK: PRODUCT,
	token.SLASH:    PRODUCT,
	token.CARET:    POWER,
	token.PERCENT:  POSTFIX,
}

// ParseError reports a parse failure at a token position.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (at %d)", e.Message, e.Pos)
}

type (
	prefixParseFn func() (ast.Expr, error)
	infixParseFn  func(ast.Expr) (ast.Expr, error)
)

// Parser consumes a pre-scanned token slice (produced by lexer.Tokenize)
// and builds an ast.Expr tree.
type Parser struct {
	tokens []token.Token
	pos    int

	cur  token.Token
	peek token.Token

	defaultSheet string

	prefixParseFns map[token.Type]prefixParseFn
	infixParseFns  map[token.Type]infixParseFn
}

// Parse tokenizes and parses a formula source string (with or without
// its leading '='). defaultSheet resolves unqualified references.
func Parse(src, defaultSheet string) (ast.Expr, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := newParser(toks, defaultSheet)
	expr, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	if p.peek.Type != token.EOF {
		return nil, &ParseError{Pos: p.peek.Pos, Message: fmt.Sprintf("unexpected trailing token %q", p.peek.Literal)}
	}
	return expr, nil
}

func newParser(toks []token.Token, defaultSheet string) *Parser {
	p := &Parser{tokens: toks, defaultSheet: defaultSheet}

	p.prefixParseFns = map[token.Type]prefixParseFn{
		token.NUMBER:    p.parseNumber,
		token.STRING:    p.parseString,
		token.BOOL:      p.parseBool,
		token.MINUS:     p.parsePrefix,
		token.LPAREN:    p.parseGrouped,
		token.REFERENCE: p.parseReference,
		token.IDENT:     p.parseIdentOrNamedRange,
		token.FUNCTION:  p.parseFunctionCall,
		token.LBRACE:    p.parseArrayLit,
	}
	p.infixParseFns = map[token.Type]infixParseFn{
		token.PLUS:     p.parseInfix,
		token.MINUS:    p.parseInfix,
		token.ASTERISK: p.parseInfix,
		token.SLASH:    p.parseInfix,
		token.CARET:    p.parseInfix,
		token.AMP:      p.parseInfix,
		token.EQ:       p.parseInfix,
		token.NE:       p.parseInfix,
		token.LT:       p.parseInfix,
		token.GT:       p.parseInfix,
		token.LE:       p.parseInfix,
		token.GE:       p.parseInfix,
		token.PERCENT:  p.parsePostfixPercent,
	}

	// prime cur/peek
	p.cur = p.tokenAt(0)
	p.peek = p.tokenAt(1)
	return p
}

func (p *Parser) tokenAt(i int) token.Token {
	if i >= len(p.tokens) {
		if len(p.tokens) == 0 {
			return token.Token{Type: token.EOF}
		}
		return token.Token{Type: token.EOF, Pos: p.tokens[len(p.tokens)-1].Pos}
	}
	return p.tokens[i]
}

func (p *Parser) nextToken() {
	p.pos++
	p.cur = p.peek
	p.peek = p.tokenAt(p.pos + 1)
}

func (p *Parser) peekPrecedence() int {
	if pr, ok := precedences[p.peek.Type]; ok {
		return pr
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if pr, ok := precedences[p.cur.Type]; ok {
		return pr
	}
	return LOWEST
}

func (p *Parser) parseExpression(precedence int) (ast.Expr, error) {
	prefix, ok := p.prefixParseFns[p.cur.Type]
	if !ok {
		return nil, &ParseError{Pos: p.cur.Pos, Message: fmt.Sprintf("unexpected token %q", p.cur.Literal)}
	}
	left, err := prefix()
	if err != nil {
		return nil, err
	}

	for p.peek.Type != token.EOF && precedence < p.peekPrecedence() {
		infix, ok := p.infixParseFns[p.peek.Type]
		if !ok {
			return left, nil
		}
		p.nextToken()
		left, err = infix(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) expectPeek(t token.Type) error {
	if p.peek.Type != t {
		return &ParseError{Pos: p.peek.Pos, Message: fmt.Sprintf("expected %s, got %q", t, p.peek.Literal)}
	}
	p.nextToken()
	return nil
}

func (p *Parser) parseNumber() (ast.Expr, error) {
	n, err := strconv.ParseFloat(p.cur.Literal, 64)
	if err != nil {
		return nil, &ParseError{Pos: p.cur.Pos, Message: fmt.Sprintf("invalid number %q", p.cur.Literal)}
	}
	return &ast.NumberLit{Value: n}, nil
}

func (p *Parser) parseString() (ast.Expr, error) {
	return &ast.TextLit{Value: p.cur.Literal}, nil
}

func (p *Parser) parseBool() (ast.Expr, error) {
	return &ast.BoolLit{Value: strings.EqualFold(p.cur.Literal, "TRUE")}, nil
}

func (p *Parser) parsePrefix() (ast.Expr, error) {
	op := p.cur.Literal
	p.nextToken()
	operand, err := p.parseExpression(PREFIX)
	if err != nil {
		return nil, err
	}
	return &ast.UnaryOp{Op: op, Operand: operand}, nil
}

func (p *Parser) parsePostfixPercent(left ast.Expr) (ast.Expr, error) {
	return &ast.UnaryOp{Op: "%", Operand: left}, nil
}

func (p *Parser) parseInfix(left ast.Expr) (ast.Expr, error) {
	op := p.cur.Literal
	precedence := p.curPrecedence()
	p.nextToken()
	right, err := p.parseExpression(rightAssocAdjust(op, precedence))
	if err != nil {
		return nil, err
	}
	return &ast.BinaryOp{Op: op, Left: left, Right: right}, nil
}

// rightAssocAdjust makes '^' right-associative: 2^3^2 == 2^(3^2).
func rightAssocAdjust(op string, precedence int) int {
	if op == "^" {
		return precedence - 1
	}
	return precedence
}

func (p *Parser) parseGrouped() (ast.Expr, error) {
	p.nextToken()
	expr, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	if err := p.expectPeek(token.RPAREN); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *Parser) parseArrayLit() (ast.Expr, error) {
	lit := &ast.ArrayLit{}
	row := []ast.Expr{}
	p.nextToken()
	for {
		expr, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		row = append(row, expr)
		switch p.peek.Type {
		case token.COMMA:
			p.nextToken()
			p.nextToken()
		case token.SEMICOLON:
			lit.Rows = append(lit.Rows, row)
			row = []ast.Expr{}
			p.nextToken()
			p.nextToken()
		case token.RBRACE:
			p.nextToken()
			lit.Rows = append(lit.Rows, row)
			return lit, nil
		default:
			return nil, &ParseError{Pos: p.peek.Pos, Message: fmt.Sprintf("expected , ; or } in array literal, got %q", p.peek.Literal)}
		}
	}
}

// parseReference handles a bare REFERENCE token. A default sheet name
// like "Sheet2" satisfies the same letters-then-digits grammar as a
// cell reference, so the lexer hands it over as REFERENCE too; when
// one is immediately followed by '!' it is a sheet qualifier, not a
// cell, so this defers to the same handling parseIdentOrNamedRange
// uses for an IDENT sheet qualifier. Otherwise it optionally continues
// into a RangeRef when directly followed by ':'.
func (p *Parser) parseReference() (ast.Expr, error) {
	if p.peek.Type == token.BANG {
		name := p.cur.Literal
		p.nextToken() // consume '!'
		if err := p.expectPeek(token.REFERENCE); err != nil {
			return nil, err
		}
		from, err := parseCellRefLiteral(p.cur.Literal, name, p.cur.Pos)
		if err != nil {
			return nil, err
		}
		if p.peek.Type == token.COLON {
			p.nextToken()
			if err := p.expectPeek(token.REFERENCE); err != nil {
				return nil, err
			}
			to, err := parseCellRefLiteral(p.cur.Literal, name, p.cur.Pos)
			if err != nil {
				return nil, err
			}
			return &ast.RangeRef{Sheet: name, From: from, To: to}, nil
		}
		return &from, nil
	}

	from, err := parseCellRefLiteral(p.cur.Literal, "", p.cur.Pos)
	if err != nil {
		return nil, err
	}
	if p.peek.Type == token.COLON {
		p.nextToken() // consume ':'
		if err := p.expectPeek(token.REFERENCE); err != nil {
			return nil, err
		}
		to, err := parseCellRefLiteral(p.cur.Literal, "", p.cur.Pos)
		if err != nil {
			return nil, err
		}
		return &ast.RangeRef{From: from, To: to}, nil
	}
	return &from, nil
}

// parseIdentOrNamedRange handles a bare IDENT: either a sheet qualifier
// (IDENT '!' REFERENCE[:REFERENCE]) or a named-range reference.
func (p *Parser) parseIdentOrNamedRange() (ast.Expr, error) {
	name := p.cur.Literal
	if p.peek.Type == token.BANG {
		p.nextToken() // consume '!'
		if err := p.expectPeek(token.REFERENCE); err != nil {
			return nil, err
		}
		from, err := parseCellRefLiteral(p.cur.Literal, name, p.cur.Pos)
		if err != nil {
			return nil, err
		}
		if p.peek.Type == token.COLON {
			p.nextToken()
			if err := p.expectPeek(token.REFERENCE); err != nil {
				return nil, err
			}
			to, err := parseCellRefLiteral(p.cur.Literal, name, p.cur.Pos)
			if err != nil {
				return nil, err
			}
			return &ast.RangeRef{Sheet: name, From: from, To: to}, nil
		}
		return &from, nil
	}
	return &ast.NamedRangeRef{Name: name}, nil
}

func (p *Parser) parseFunctionCall() (ast.Expr, error) {
	name := strings.ToUpper(p.cur.Literal)
	if err := p.expectPeek(token.LPAREN); err != nil {
		return nil, err
	}
	call := &ast.FunctionCall{Name: name}
	if p.peek.Type == token.RPAREN {
		p.nextToken()
		return call, nil
	}
	p.nextToken()
	arg, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	call.Args = append(call.Args, arg)
	for p.peek.Type == token.COMMA {
		p.nextToken()
		p.nextToken()
		arg, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
	}
	if err := p.expectPeek(token.RPAREN); err != nil {
		return nil, err
	}
	return call, nil
}

// parseCellRefLiteral decodes an A1-style literal (with optional '$'
// markers) into row/col zero-based coordinates.
func parseCellRefLiteral(lit, sheet string, pos int) (ast.CellRef, error) {
	i := 0
	n := len(lit)
	colAbs := false
	if i < n && lit[i] == '$' {
		colAbs = true
		i++
	}
	letterStart := i
	for i < n && isAlpha(lit[i]) {
		i++
	}
	letters := lit[letterStart:i]
	rowAbs := false
	if i < n && lit[i] == '$' {
		rowAbs = true
		i++
	}
	digits := lit[i:]
	if letters == "" || digits == "" {
		return ast.CellRef{}, &ParseError{Pos: pos, Message: fmt.Sprintf("malformed cell reference %q", lit)}
	}
	col := lettersToColumn(letters)
	row, err := strconv.Atoi(digits)
	if err != nil {
		return ast.CellRef{}, &ParseError{Pos: pos, Message: fmt.Sprintf("malformed row in reference %q", lit)}
	}
	return ast.CellRef{Sheet: sheet, Col: col, Row: row - 1, ColAbs: colAbs, RowAbs: rowAbs}, nil
}

func isAlpha(b byte) bool { return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') }

// lettersToColumn converts an Excel-style column letter sequence
// (case-insensitive) into a 0-based column index: A=0, Z=25, AA=26.
func lettersToColumn(letters string) int {
	col := 0
	for i := 0; i < len(letters); i++ {
		ch := letters[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		col = col*26 + int(ch-'A'+1)
	}
	return col - 1
}
