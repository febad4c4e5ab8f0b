package sheet

import (
	"gridcore/ast"
	"gridcore/cellvalue"
)

// Cell holds exactly one stored value plus a formatting record that
// survives value edits. Formula cells additionally carry a parsed AST
// (nil if the stored text failed to parse, in which case evaluation
// yields #PARSE!), the dynamic-dep flag, a cycle mark, and the cached
// result from the most recent recompute.
type Cell struct {
	Stored      cellvalue.Stored
	AST         ast.Expr
	Format      cellvalue.Format
	LastResult  cellvalue.Value
	Dynamic     bool // true if AST calls INDIRECT/OFFSET
	Volatile    bool // true if AST calls NOW/TODAY/RAND/RANDBETWEEN
	CycleMarked bool
	// SpillOrigin is set on a receiver cell to the CellId of the array
	// formula that owns it; zero value means "not a spill receiver".
	SpillOrigin CellId
	IsSpillRecv bool
}

// IsEmpty reports whether the cell has no stored value and default
// formatting, meaning it can be dropped from sparse storage.
func (c *Cell) IsEmpty() bool {
	return c.Stored.Kind == cellvalue.Empty && c.Format.IsDefault() && !c.IsSpillRecv
}

// NewCell returns a cell initialized from classified raw text, with
// default formatting.
func NewCell(raw string) *Cell {
	return &Cell{Stored: cellvalue.Classify(raw)}
}
