package ast

// dynamicRefFunctions names the functions whose presence in a formula
// forces that cell to be treated as depending on the entire workbook,
// since their actual references are only known at evaluation time.
var dynamicRefFunctions = map[string]bool{
	"INDIRECT": true,
	"OFFSET":   true,
}

// KnownFunctions is the exhaustive set of function names the evaluator
// implements, grouped the way the evaluation package dispatches them.
var KnownFunctions = map[string]bool{
	// Aggregates
	"SUM": true, "AVERAGE": true, "COUNT": true, "COUNTA": true,
	"COUNTBLANK": true, "MIN": true, "MAX": true, "MEDIAN": true,
	"PRODUCT": true, "STDEV": true, "STDEV.S": true, "STDEV.P": true, "STDEVP": true,
	"VAR": true, "VAR.S": true, "VAR.P": true, "VARP": true, "AVG": true,
	// Conditional aggregates
	"SUMIF": true, "SUMIFS": true, "COUNTIF": true, "COUNTIFS": true,
	"AVERAGEIF": true, "AVERAGEIFS": true, "MAXIFS": true, "MINIFS": true,
	// Logic
	"IF": true, "IFS": true, "AND": true, "OR": true, "NOT": true, "XOR": true,
	"IFERROR": true, "IFNA": true, "SWITCH": true,
	// Information
	"ISERROR": true, "ISNA": true, "ISBLANK": true, "ISNUMBER": true,
	"ISTEXT": true, "ISLOGICAL": true, "ISEVEN": true, "ISODD": true,
	"ERROR.TYPE": true, "NA": true,
	// Math/trig
	"ABS": true, "ROUND": true, "ROUNDUP": true, "ROUNDDOWN": true,
	"CEILING": true, "FLOOR": true, "TRUNC": true, "INT": true, "MOD": true,
	"POWER": true, "SQRT": true, "EXP": true, "LN": true, "LOG": true,
	"LOG10": true, "PI": true, "SIGN": true, "SIN": true, "COS": true, "TAN": true,
	"ASIN": true, "ACOS": true, "ATAN": true, "ATAN2": true, "RAND": true, "RANDBETWEEN": true,
	"DEGREES": true, "RADIANS": true,
	// Text
	"CONCATENATE": true, "CONCAT": true, "LEFT": true, "RIGHT": true, "MID": true,
	"LEN": true, "UPPER": true, "LOWER": true, "PROPER": true, "TRIM": true,
	"SUBSTITUTE": true, "REPLACE": true, "FIND": true, "SEARCH": true,
	"TEXT": true, "VALUE": true, "REPT": true, "EXACT": true, "TEXTJOIN": true,
	// Lookup
	"VLOOKUP": true, "HLOOKUP": true, "XLOOKUP": true, "INDEX": true,
	"MATCH": true, "CHOOSE": true, "LOOKUP": true,
	// Reference-returning (dynamic)
	"INDIRECT": true, "OFFSET": true,
	// Reference info
	"ROW": true, "COLUMN": true, "ROWS": true, "COLUMNS": true,
	// Date/time
	"NOW": true, "TODAY": true, "DATE": true, "YEAR": true, "MONTH": true,
	"DAY": true, "HOUR": true, "MINUTE": true, "SECOND": true, "WEEKDAY": true,
	"DATEVALUE": true, "EDATE": true, "EOMONTH": true, "DAYS": true, "NETWORKDAYS": true,
	"DATEDIF": true,
	// Array
	"FILTER": true, "SORT": true, "SORTBY": true, "UNIQUE": true,
	"SEQUENCE": true, "TRANSPOSE": true,
}

// volatileFunctions re-evaluate on every recompute regardless of
// dependency-graph dirtiness, the same way NOW()/TODAY()/RAND() behave
// in conventional spreadsheet engines.
var volatileFunctions = map[string]bool{
	"NOW": true, "TODAY": true, "RAND": true, "RANDBETWEEN": true,
}

// IsDynamicRefFunction reports whether name (already uppercased) is
// INDIRECT or OFFSET.
func IsDynamicRefFunction(name string) bool { return dynamicRefFunctions[name] }

// IsVolatile reports whether name (already uppercased) must be
// re-evaluated on every recompute pass.
func IsVolatile(name string) bool { return volatileFunctions[name] }

// IsKnownFunction reports whether the evaluator implements name.
func IsKnownFunction(name string) bool { return KnownFunctions[name] }

// walk invokes visit on every node reachable from n, including n itself.
func walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch v := n.(type) {
	case *BinaryOp:
		walk(v.Left, visit)
		walk(v.Right, visit)
	case *UnaryOp:
		walk(v.Operand, visit)
	case *FunctionCall:
		for _, a := range v.Args {
			walk(a, visit)
		}
	case *ArrayLit:
		for _, row := range v.Rows {
			for _, cell := range row {
				walk(cell, visit)
			}
		}
	}
}

// CollectStaticRefs returns every CellRef and RangeRef reachable from
// root, sheet-resolved against defaultSheet for unqualified references.
// NamedRangeRef nodes are resolved by the caller (they require workbook
// lookup) and are not expanded here.
func CollectStaticRefs(root Node, defaultSheet string) (cells []CellRef, ranges []RangeRef, names []string) {
	walk(root, func(n Node) {
		switch v := n.(type) {
		case *CellRef:
			c := *v
			if c.Sheet == "" {
				c.Sheet = defaultSheet
			}
			cells = append(cells, c)
		case *RangeRef:
			r := *v
			sheet := r.Sheet
			if sheet == "" {
				sheet = defaultSheet
			}
			r.Sheet = sheet
			if r.From.Sheet == "" {
				r.From.Sheet = sheet
			}
			if r.To.Sheet == "" {
				r.To.Sheet = sheet
			}
			ranges = append(ranges, r)
		case *NamedRangeRef:
			names = append(names, v.Name)
		}
	})
	return
}

// HasDynamicDeps reports whether root calls INDIRECT or OFFSET anywhere,
// meaning the owning cell's true dependency set cannot be determined
// statically.
func HasDynamicDeps(root Node) bool {
	found := false
	walk(root, func(n Node) {
		if fc, ok := n.(*FunctionCall); ok && IsDynamicRefFunction(fc.Name) {
			found = true
		}
	})
	return found
}

// HasVolatileCalls reports whether root calls a volatile function
// (NOW, TODAY, RAND, RANDBETWEEN) anywhere.
func HasVolatileCalls(root Node) bool {
	found := false
	walk(root, func(n Node) {
		if fc, ok := n.(*FunctionCall); ok && IsVolatile(fc.Name) {
			found = true
		}
	})
	return found
}

// CollectUnknownFunctions returns the sorted-by-discovery list of
// function names called in root that the evaluator does not implement,
// used to produce a #NAME? diagnostic at parse/validate time.
func CollectUnknownFunctions(root Node) []string {
	seen := map[string]bool{}
	var out []string
	walk(root, func(n Node) {
		if fc, ok := n.(*FunctionCall); ok && !IsKnownFunction(fc.Name) {
			if !seen[fc.Name] {
				seen[fc.Name] = true
				out = append(out, fc.Name)
			}
		}
	})
	return out
}
