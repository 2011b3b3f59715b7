package core

// convert.go turns loosely formatted input into typed values.
//
// Incident timestamps arrive in several layouts: ISO with or without a "T",
// the US "01/02/2006 03:04:05 PM" export format, and bare dates. All of them
// are reduced to a zone-less wall clock at second precision, which is the
// form the crash identifier hashes.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 03:04:05 PM",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// ParseTimestamp parses s in any supported layout and returns its wall
// clock at second precision. Zone offsets are discarded, not converted.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return WallClock(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// WallClock returns t's calendar fields as a UTC time truncated to seconds.
// Storage keeps timestamps without zone, so this is the round-trip form.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// ParseOptionalInt parses an integer cell, treating blank as absent.
// Values like "12.0" from spreadsheet exports are accepted when integral.
func ParseOptionalInt(s string) (*int, error) {
	s = CleanCell(s)
	if s == "" {
		return nil, nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return &i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	i := int(f)
	return &i, nil
}

// ParseOptionalInt64 is ParseOptionalInt for 64-bit keys.
func ParseOptionalInt64(s string) (*int64, error) {
	i, err := ParseOptionalInt(s)
	if err != nil || i == nil {
		return nil, err
	}
	v := int64(*i)
	return &v, nil
}

// ParseFloat parses a required decimal cell. NaN and Inf spellings are
// rejected.
func ParseFloat(s string) (float64, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// OptionalText returns nil for blank cells.
func OptionalText(s string) *string {
	s = CleanCell(s)
	if s == "" {
		return nil
	}
	return &s
}

// HeaderIndex maps lowercase column names to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// Cell returns the cleaned value of column name, or "" if absent.
func (h HeaderIndex) Cell(row []string, name string) string {
	pos, ok := h[strings.ToLower(name)]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// Has reports whether the header contains column name.
func (h HeaderIndex) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// CleanCell strips whitespace, the UTF-8 BOM, surrounding quotes and the
// ="..." wrapper spreadsheets add to keep leading zeros.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\ufeff")
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
