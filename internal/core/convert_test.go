package core

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "canonical", input: "2024-01-15 14:30:00", want: want},
		{name: "ISO with T", input: "2024-01-15T14:30:00", want: want},
		{name: "RFC3339 offset discarded", input: "2024-01-15T14:30:00-06:00", want: want},
		{name: "fractional seconds truncated", input: "2024-01-15 14:30:00.987", want: want},
		{name: "US export format", input: "01/15/2024 02:30:00 PM", want: want},
		{name: "US short format", input: "1/15/2024 2:30:00 PM", want: want},
		{name: "surrounding whitespace", input: "  2024-01-15 14:30:00 ", want: want},
		{name: "bare date", input: "2024-01-15", want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "yesterday", wantErr: true},
		{name: "invalid date", input: "2024-02-30 10:00:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWallClock(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	in := time.Date(2024, 1, 15, 14, 30, 0, 999, loc)
	got := WallClock(in)

	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	if got.Format(TimestampLayout) != "2024-01-15 14:30:00" {
		t.Errorf("wall clock = %s, want fields kept", got.Format(TimestampLayout))
	}
}

func TestParseOptionalInt(t *testing.T) {
	tests := []struct {
		input   string
		want    *int
		wantErr bool
	}{
		{input: "", want: nil},
		{input: "  ", want: nil},
		{input: "42", want: ptr(42)},
		{input: "-3", want: ptr(-3)},
		{input: "12.0", want: ptr(12)},
		{input: "12.5", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseOptionalInt(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOptionalInt(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseOptionalInt(%q) = %d, want nil", tt.input, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("ParseOptionalInt(%q) = %v, want %d", tt.input, got, *tt.want)
		}
	}
}

func TestParseFloat(t *testing.T) {
	if f, err := ParseFloat(" 41.8781 "); err != nil || f != 41.8781 {
		t.Errorf("ParseFloat() = %v, %v", f, err)
	}
	if _, err := ParseFloat(""); err == nil {
		t.Error("empty value accepted")
	}
	if _, err := ParseFloat("north"); err == nil {
		t.Error("text accepted")
	}
	for _, s := range []string{"NaN", "nan", "Inf", "-Infinity", "+inf"} {
		if _, err := ParseFloat(s); err == nil {
			t.Errorf("ParseFloat(%q) accepted a non-finite value", s)
		}
	}
}

func TestOptionalText(t *testing.T) {
	if OptionalText("  ") != nil {
		t.Error("blank should be nil")
	}
	if got := OptionalText(` "STATE ST" `); got == nil || *got != "STATE ST" {
		t.Errorf("OptionalText() = %v", got)
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string unchanged", input: "hello", want: "hello"},
		{name: "empty string", input: "", want: ""},
		{name: "surrounded by whitespace", input: "  hello  ", want: "hello"},
		{name: "BOM prefix", input: "\ufeffcrash_record_id", want: "crash_record_id"},
		{name: "Excel formula with quotes", input: `="12345"`, want: "12345"},
		{name: "surrounding quotes", input: `"hello"`, want: "hello"},
		{name: "lone quote kept", input: `"`, want: `"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		checks map[string]int // key -> expected index
	}{
		{
			name:   "case insensitive lookup",
			header: []string{"CRASH_RECORD_ID", "Latitude", "longitude"},
			checks: map[string]int{"crash_record_id": 0, "latitude": 1, "longitude": 2},
		},
		{
			name:   "headers with quotes and whitespace cleaned",
			header: []string{` "Age" `, "\ufeffSex"},
			checks: map[string]int{"age": 0, "sex": 1},
		},
		{
			name:   "first duplicate wins",
			header: []string{"Make", "Model", "make"},
			checks: map[string]int{"make": 0, "model": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := MakeHeaderIndex(tt.header)
			for key, wantPos := range tt.checks {
				gotPos, ok := idx[key]
				if !ok || gotPos != wantPos {
					t.Errorf("MakeHeaderIndex(%v)[%q] = %d (found %v), want %d", tt.header, key, gotPos, ok, wantPos)
				}
			}
		})
	}
}

func TestHeaderIndexCell(t *testing.T) {
	idx := MakeHeaderIndex([]string{"age", "sex"})
	row := []string{" 34 "}

	if got := idx.Cell(row, "AGE"); got != "34" {
		t.Errorf("Cell(age) = %q, want 34", got)
	}
	if got := idx.Cell(row, "sex"); got != "" {
		t.Errorf("Cell on short row = %q, want empty", got)
	}
	if idx.Has("missing") {
		t.Error("Has(missing) = true")
	}
}
