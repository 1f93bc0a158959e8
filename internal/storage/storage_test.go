package storage

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want Range
		str  string
	}{
		{"A2:A", Range{Sheet: DefaultSheet, StartCol: 1, StartRow: 2, EndCol: 1}, "Sheet1!A2:A"},
		{"Black list!A2:A", Range{Sheet: "Black list", StartCol: 1, StartRow: 2, EndCol: 1}, "'Black list'!A2:A"},
		{"'Black list'!A2:A", Range{Sheet: "Black list", StartCol: 1, StartRow: 2, EndCol: 1}, "'Black list'!A2:A"},
		{"A2", Range{Sheet: DefaultSheet, StartCol: 1, StartRow: 2}, "Sheet1!A2"},
		{"Results!B3:F10", Range{Sheet: "Results", StartCol: 2, StartRow: 3, EndCol: 6, EndRow: 10}, "Results!B3:F10"},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.in)
		if err != nil {
			t.Errorf("ParseRange(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRange(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.String() != tt.str {
			t.Errorf("String() = %q, want %q", got.String(), tt.str)
		}
	}
}

func TestParseRange_Invalid(t *testing.T) {
	for _, in := range []string{"", "!A2", "2A", "B2:A", "A5:A2", "A2:?"} {
		if _, err := ParseRange(in); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ParseRange(%q) err = %v, want ErrInvalidRange", in, err)
		}
	}
}

func TestWindow(t *testing.T) {
	rows := []Row{
		{Num: 4, Cells: []string{"d.com"}},
		{Num: 1, Cells: []string{"Site", "DR"}},
		{Num: 2, Cells: []string{"a.com", "40"}},
		{Num: 6, Cells: []string{"", "orphan"}},
	}
	got := Window(rows, MustParseRange("A2:A"))
	want := [][]string{{"a.com"}, {}, {"d.com"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Window(A2:A) = %#v, want %#v", got, want)
	}

	got = Window(rows, MustParseRange("A2:B"))
	want = [][]string{{"a.com", "40"}, {}, {"d.com"}, {}, {"", "orphan"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Window(A2:B) = %#v, want %#v", got, want)
	}

	if got := Window(nil, MustParseRange("A2:A")); got == nil || len(got) != 0 {
		t.Errorf("Window of empty sheet = %#v", got)
	}
}

func TestPlace(t *testing.T) {
	r := MustParseRange("B2")
	got := Place(0, r, [][]string{{"x", "1"}})
	want := []Row{{Num: 2, Cells: []string{"", "x", "1"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Place on empty sheet = %#v, want %#v", got, want)
	}

	got = Place(7, MustParseRange("A2"), [][]string{{"a"}, {"b"}})
	if got[0].Num != 8 || got[1].Num != 9 {
		t.Errorf("Place after row 7 numbered %d, %d", got[0].Num, got[1].Num)
	}
}

func TestLastRow(t *testing.T) {
	rows := Grid([][]string{{"Site"}, {"a.com"}, {"", " "}})
	if got := LastRow(rows); got != 2 {
		t.Errorf("LastRow = %d, want 2", got)
	}
}
