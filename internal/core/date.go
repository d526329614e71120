package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the layout used when writing dates to the store.
const DateLayout = "2006-01-02"

// ErrUnparsableDate is returned by ParseDate when no layout matches.
var ErrUnparsableDate = errors.New("unparsable date")

// Accepted layouts, tried in order. ISO forms come first so values written
// by FormatDate always round-trip; slash forms are day-first as typed in an
// Italian-locale sheet. Month-first forms come last and so only match when
// the first field cannot be a day-first month, as in 03/15/2024.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04:05",
	"2/1/2006 15:04:05",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/06",
	"2/1/06",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01-02-2006",
	"1-2-2006",
}

// sheetsEpoch is day zero of spreadsheet serial dates.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// maxSerial is 9999-12-31 as a spreadsheet serial.
const maxSerial = 2958465

// ParseDate converts a loosely-typed cell into a calendar date at UTC
// midnight. It accepts time.Time, spreadsheet serial numbers and the string
// layouts above.
func ParseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, ErrUnparsableDate
	case time.Time:
		if x.IsZero() {
			return time.Time{}, ErrUnparsableDate
		}
		return DateOf(x), nil
	case float64:
		return fromSerial(x)
	case float32:
		return fromSerial(float64(x))
	case int:
		return fromSerial(float64(x))
	case int64:
		return fromSerial(float64(x))
	case string:
		return parseDateString(x)
	default:
		return parseDateString(fmt.Sprint(x))
	}
}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparsableDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableDate, s)
}

func fromSerial(f float64) (time.Time, error) {
	if math.IsNaN(f) || f < 1 || f > maxSerial {
		return time.Time{}, fmt.Errorf("%w: serial %v", ErrUnparsableDate, f)
	}
	return sheetsEpoch.AddDate(0, 0, int(math.Floor(f))), nil
}

// DateOf drops the clock part of t, keeping its calendar date as seen in t's
// own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// FormatDate renders a date the way it is written to the store.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
