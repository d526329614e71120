// Package core provides odometer parsing.
//
// Operators type readings by hand on a phone keyboard, so the parser accepts
// thousands separators, a decimal comma and a trailing unit.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// maxOdometerKm rejects readings no vehicle in a fleet reaches.
const maxOdometerKm = 10_000_000

// ParseOdometer converts a typed reading into kilometres.
//
// Examples:
//
//	ParseOdometer("12345")     -> 12345
//	ParseOdometer("12.345")    -> 12345 (thousands group)
//	ParseOdometer("12 345 km") -> 12345
//	ParseOdometer("1234,5")    -> 1234.5
//	ParseOdometer("-3")        -> error
func ParseOdometer(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, "km")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidKm
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidKm
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' && r != ' ' {
			return 0, ErrInvalidKm
		}
	}

	var normalized string
	switch {
	case isThousandsGrouped(s):
		normalized = strings.NewReplacer(".", "", " ", "").Replace(s)
	case strings.Contains(s, " "):
		return 0, ErrInvalidKm
	case strings.Count(s, ",")+strings.Count(s, ".") > 1:
		return 0, ErrInvalidKm
	default:
		normalized = strings.ReplaceAll(s, ",", ".")
	}

	km, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(km) || math.IsInf(km, 0) {
		return 0, ErrInvalidKm
	}
	if km < 0 || km > maxOdometerKm {
		return 0, fmt.Errorf("%w: %v out of range", ErrInvalidKm, km)
	}
	return km, nil
}

// isThousandsGrouped reports whether s looks like 12.345, 1.234.567 or
// 12 345: a 1-3 digit head followed by groups of exactly three digits, all
// separated by the same separator.
func isThousandsGrouped(s string) bool {
	var sep string
	switch {
	case strings.Contains(s, "."):
		sep = "."
	case strings.Contains(s, " "):
		sep = " "
	default:
		return false
	}
	if strings.Contains(s, ",") {
		return false
	}
	parts := strings.Split(s, sep)
	if len(parts) < 2 || len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

// FormatOdometer renders a reading without a trailing ".0".
func FormatOdometer(km float64) string {
	return strconv.FormatFloat(km, 'f', -1, 64)
}
