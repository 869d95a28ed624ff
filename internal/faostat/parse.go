package faostat

import (
	"math"
	"strconv"
	"strings"
)

// parseIntOr parses a FAOSTAT code, returning def for blanks and junk.
// Codes are sometimes exported with a leading apostrophe or quotes.
func parseIntOr(s string, def int) int {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	// "15.0" from spreadsheet exports.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return def
	}
	return int(f)
}

// parseFloat parses a value cell. Blank, non-numeric and non-finite cells
// report ok=false.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseYearOr parses an optional year cell.
func parseYearOr(s string, def int) int {
	return parseIntOr(s, def)
}
