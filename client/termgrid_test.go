package client

import "testing"

func TestParseCellInput(t *testing.T) {
	addr, text, ok := ParseCellInput("A1=10")
	if !ok || addr != "A1" || text != "10" {
		t.Fatalf("got addr=%q text=%q ok=%v", addr, text, ok)
	}
	if _, _, ok := ParseCellInput("no equals sign"); ok {
		t.Fatalf("expected ok=false for input without '='")
	}
	if _, _, ok := ParseCellInput("=10"); ok {
		t.Fatalf("expected ok=false for empty address")
	}
}

func TestParseAddress(t *testing.T) {
	cases := []struct {
		addr     string
		row, col int
		wantErr  bool
	}{
		{"A1", 0, 0, false},
		{"B2", 1, 1, false},
		{"Z1", 0, 25, false},
		{"AA1", 0, 26, false},
		{"a10", 9, 0, false},
		{"1A", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, c := range cases {
		row, col, err := parseAddress(c.addr)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseAddress(%q): expected error", c.addr)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseAddress(%q): unexpected error %v", c.addr, err)
			continue
		}
		if row != c.row || col != c.col {
			t.Errorf("parseAddress(%q) = (%d,%d), want (%d,%d)", c.addr, row, col, c.row, c.col)
		}
	}
}

func TestColumnLettersRoundTrip(t *testing.T) {
	for _, col := range []int{0, 1, 25, 26, 27, 701, 702} {
		letters := columnLetters(col)
		if got := columnIndex(letters); got != col {
			t.Errorf("columnIndex(columnLetters(%d)) = %d, want %d (letters=%q)", col, got, col, letters)
		}
	}
}

func TestRenderCellValue(t *testing.T) {
	cases := []struct {
		v    interface{}
		want string
	}{
		{map[string]interface{}{"kind": "number", "num": 42.0}, "42"},
		{map[string]interface{}{"kind": "text", "str": "hi"}, "hi"},
		{map[string]interface{}{"kind": "boolean", "bool": true}, "TRUE"},
		{map[string]interface{}{"kind": "boolean", "bool": false}, "FALSE"},
		{map[string]interface{}{"kind": "error", "err": "#DIV/0!"}, "#DIV/0!"},
		{map[string]interface{}{"kind": "empty"}, ""},
	}
	for _, c := range cases {
		if got := renderCellValue(c.v); got != c.want {
			t.Errorf("renderCellValue(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}
