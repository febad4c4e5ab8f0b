package eval

import (
	"strconv"
	"strings"

	"gridcore/ast"
	"gridcore/cellvalue"
)

func textArg(ctx Context, arg ast.Expr) (string, cellvalue.Value, bool) {
	v := Eval(ctx, arg).ToFlat()
	if v.IsError() {
		return "", v, false
	}
	s, errKind, ok := cellvalue.ToText(v)
	if !ok {
		return "", cellvalue.Err(errKind), false
	}
	return s, cellvalue.Value{}, true
}

func numArg(ctx Context, arg ast.Expr) (float64, cellvalue.Value, bool) {
	v := Eval(ctx, arg).ToFlat()
	if v.IsError() {
		return 0, v, false
	}
	n, errKind, ok := cellvalue.ToNumber(v)
	if !ok {
		return 0, cellvalue.Err(errKind), false
	}
	return n, cellvalue.Value{}, true
}

func fnCONCATENATE(ctx Context, args []ast.Expr) cellvalue.Value {
	var b strings.Builder
	for _, a := range args {
		s, errVal, ok := textArg(ctx, a)
		if !ok {
			return errVal
		}
		b.WriteString(s)
	}
	return cellvalue.Txt(b.String())
}

// fnCONCAT behaves like CONCATENATE but also flattens range arguments
// cell by cell.
func fnCONCAT(ctx Context, args []ast.Expr) cellvalue.Value {
	var b strings.Builder
	for _, a := range args {
		for _, v := range flattenArg(ctx, a) {
			if v.IsError() {
				return v
			}
			s, errKind, ok := cellvalue.ToText(v)
			if !ok {
				return cellvalue.Err(errKind)
			}
			b.WriteString(s)
		}
	}
	return cellvalue.Txt(b.String())
}

func fnLEFT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 1 || len(args) > 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	n := 1.0
	if len(args) == 2 {
		var errVal cellvalue.Value
		n, errVal, ok = numArg(ctx, args[1])
		if !ok {
			return errVal
		}
	}
	runes := []rune(s)
	k := clampLen(int(n), len(runes))
	return cellvalue.Txt(string(runes[:k]))
}

func fnRIGHT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 1 || len(args) > 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	n := 1.0
	if len(args) == 2 {
		var errVal cellvalue.Value
		n, errVal, ok = numArg(ctx, args[1])
		if !ok {
			return errVal
		}
	}
	runes := []rune(s)
	k := clampLen(int(n), len(runes))
	return cellvalue.Txt(string(runes[len(runes)-k:]))
}

func clampLen(n, max int) int {
	if n < 0 {
		n = 0
	}
	if n > max {
		n = max
	}
	return n
}

func fnMID(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	start, errVal, ok := numArg(ctx, args[1])
	if !ok {
		return errVal
	}
	length, errVal, ok := numArg(ctx, args[2])
	if !ok {
		return errVal
	}
	runes := []rune(s)
	si := int(start) - 1
	if si < 0 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	if si >= len(runes) || length <= 0 {
		return cellvalue.Txt("")
	}
	end := si + int(length)
	if end > len(runes) {
		end = len(runes)
	}
	return cellvalue.Txt(string(runes[si:end]))
}

func fnLEN(ctx Context, args []ast.Expr) cellvalue.Value {
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	return cellvalue.Num(float64(len([]rune(s))))
}

func fnUPPER(ctx Context, args []ast.Expr) cellvalue.Value {
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	return cellvalue.Txt(strings.ToUpper(s))
}

func fnLOWER(ctx Context, args []ast.Expr) cellvalue.Value {
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	return cellvalue.Txt(strings.ToLower(s))
}

func fnPROPER(ctx Context, args []ast.Expr) cellvalue.Value {
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	return cellvalue.Txt(strings.Title(strings.ToLower(s)))
}

func fnTRIM(ctx Context, args []ast.Expr) cellvalue.Value {
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	fields := strings.Fields(s)
	return cellvalue.Txt(strings.Join(fields, " "))
}

func fnSUBSTITUTE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 || len(args) > 4 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	old, errVal, ok := textArg(ctx, args[1])
	if !ok {
		return errVal
	}
	newS, errVal, ok := textArg(ctx, args[2])
	if !ok {
		return errVal
	}
	if len(args) == 3 {
		return cellvalue.Txt(strings.ReplaceAll(s, old, newS))
	}
	instance, errVal, ok := numArg(ctx, args[3])
	if !ok {
		return errVal
	}
	return cellvalue.Txt(replaceNth(s, old, newS, int(instance)))
}

func replaceNth(s, old, newS string, n int) string {
	if old == "" || n < 1 {
		return s
	}
	idx := -1
	count := 0
	for i := 0; i+len(old) <= len(s); i++ {
		if s[i:i+len(old)] == old {
			count++
			if count == n {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return s
	}
	return s[:idx] + newS + s[idx+len(old):]
}

func fnREPLACE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 4 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	start, errVal, ok := numArg(ctx, args[1])
	if !ok {
		return errVal
	}
	length, errVal, ok := numArg(ctx, args[2])
	if !ok {
		return errVal
	}
	newText, errVal, ok := textArg(ctx, args[3])
	if !ok {
		return errVal
	}
	runes := []rune(s)
	si := int(start) - 1
	if si < 0 || si > len(runes) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	end := si + int(length)
	if end > len(runes) {
		end = len(runes)
	}
	if end < si {
		end = si
	}
	return cellvalue.Txt(string(runes[:si]) + newText + string(runes[end:]))
}

func findSearch(ctx Context, args []ast.Expr, caseSensitive bool) cellvalue.Value {
	if len(args) < 2 || len(args) > 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	find, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	within, errVal, ok := textArg(ctx, args[1])
	if !ok {
		return errVal
	}
	start := 1.0
	if len(args) == 3 {
		start, errVal, ok = numArg(ctx, args[2])
		if !ok {
			return errVal
		}
	}
	haystack, needle := within, find
	if !caseSensitive {
		haystack, needle = strings.ToUpper(within), strings.ToUpper(find)
	}
	runes := []rune(haystack)
	si := int(start) - 1
	if si < 0 || si > len(runes) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	idx := strings.Index(string(runes[si:]), needle)
	if idx < 0 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	return cellvalue.Num(float64(si + len([]rune(string(runes[si:])[:idx])) + 1))
}

func fnFIND(ctx Context, args []ast.Expr) cellvalue.Value   { return findSearch(ctx, args, true) }
func fnSEARCH(ctx Context, args []ast.Expr) cellvalue.Value { return findSearch(ctx, args, false) }

func fnVALUE(ctx Context, args []ast.Expr) cellvalue.Value {
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	return cellvalue.Num(n)
}

func fnTEXT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	v := Eval(ctx, args[0]).ToFlat()
	if v.IsError() {
		return v
	}
	format, errVal, ok := textArg(ctx, args[1])
	if !ok {
		return errVal
	}
	// Numbers honour the format codes "0" and "0.0…" (fixed decimals),
	// optionally followed by "%" (value times 100). Any other format, or
	// a non-number value, gets the scalar's general text coercion.
	if v.Tag == cellvalue.VNumber {
		pattern, suffix, n := strings.TrimSuffix(format, "%"), "", v.Num
		if pattern != format {
			suffix, n = "%", n*100
		}
		if pattern == "0" || (len(pattern) > 2 && pattern[:2] == "0." && strings.Trim(pattern[2:], "0") == "") {
			return cellvalue.Txt(strconv.FormatFloat(n, 'f', max(len(pattern)-2, 0), 64) + suffix)
		}
	}
	s, errKind, ok := cellvalue.ToText(v)
	if !ok {
		return cellvalue.Err(errKind)
	}
	return cellvalue.Txt(s)
}

func fnREPT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	n, errVal, ok := numArg(ctx, args[1])
	if !ok {
		return errVal
	}
	if n < 0 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	return cellvalue.Txt(strings.Repeat(s, int(n)))
}

func fnEXACT(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	a, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	b, errVal, ok := textArg(ctx, args[1])
	if !ok {
		return errVal
	}
	return cellvalue.Bln(a == b)
}

func fnTEXTJOIN(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	delim, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	skipEmpty := Eval(ctx, args[1]).ToFlat()
	skip, errKind, ok := cellvalue.ToBool(skipEmpty)
	if !ok {
		return cellvalue.Err(errKind)
	}
	var parts []string
	for _, a := range args[2:] {
		for _, v := range flattenArg(ctx, a) {
			if v.IsError() {
				return v
			}
			s, errKind, ok := cellvalue.ToText(v)
			if !ok {
				return cellvalue.Err(errKind)
			}
			if skip && s == "" {
				continue
			}
			parts = append(parts, s)
		}
	}
	return cellvalue.Txt(strings.Join(parts, delim))
}
