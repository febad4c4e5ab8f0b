package cellvalue

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{"", Empty},
		{"=A1+B1", FormulaKind},
		{"42", Number},
		{"42.5", Number},
		{"true", Boolean},
		{"FALSE", Boolean},
		{"hello", Text},
	}
	for _, tt := range tests {
		got := Classify(tt.raw)
		if got.Kind != tt.kind {
			t.Errorf("Classify(%q).Kind = %v, want %v", tt.raw, got.Kind, tt.kind)
		}
	}
}

func TestRawRoundTrip(t *testing.T) {
	for _, raw := range []string{"42", "-3.5", "hello world", "TRUE"} {
		s := Classify(raw)
		if got := s.Raw(); got != raw {
			t.Errorf("Raw() round-trip for %q = %q", raw, got)
		}
	}
}

func TestCompareEmptyEqualsEmpty(t *testing.T) {
	cmp, _, ok := Compare(EmptyVal(), EmptyVal())
	if !ok || cmp != 0 {
		t.Fatalf("Empty=Empty should compare equal, got cmp=%d ok=%v", cmp, ok)
	}
}

func TestCompareCrossType(t *testing.T) {
	cmp, _, ok := Compare(Num(5), Txt("apple"))
	if !ok || cmp >= 0 {
		t.Fatalf("Number should sort before Text, got cmp=%d", cmp)
	}
	cmp, _, ok = Compare(Txt("apple"), Bln(false))
	if !ok || cmp >= 0 {
		t.Fatalf("Text should sort before Boolean, got cmp=%d", cmp)
	}
}

func TestCompareTextCaseInsensitive(t *testing.T) {
	cmp, _, ok := Compare(Txt("Hello"), Txt("HELLO"))
	if !ok || cmp != 0 {
		t.Fatalf("text comparison should be case-insensitive, got cmp=%d", cmp)
	}
}

func TestToNumberCoercions(t *testing.T) {
	if n, _, ok := ToNumber(Bln(true)); !ok || n != 1 {
		t.Errorf("true -> 1, got %v ok=%v", n, ok)
	}
	if n, _, ok := ToNumber(EmptyVal()); !ok || n != 0 {
		t.Errorf("Empty -> 0, got %v ok=%v", n, ok)
	}
	if _, errKind, ok := ToNumber(Txt("abc")); ok || errKind != ErrValue {
		t.Errorf("non-numeric text should fail with #VALUE!, got ok=%v err=%v", ok, errKind)
	}
}

func TestFormatMerge(t *testing.T) {
	base := Format{Bold: true, FontName: "Arial"}
	patch := Format{Italic: true, FontName: "Georgia"}
	merged := base.Merge(patch)
	if !merged.Bold || !merged.Italic || merged.FontName != "Georgia" {
		t.Errorf("unexpected merge result: %+v", merged)
	}
}
