package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Sheet column names. Headers are matched case-insensitively after trimming.
const (
	ColumnDate     = "DATA"
	ColumnDriver   = "DRIVER"
	ColumnPlate    = "TARGA"
	ColumnOdometer = "KM"
	ColumnNotes    = "SEGNALAZIONI"
)

// RequiredColumns must all be present for a table to be usable.
var RequiredColumns = []string{ColumnDate, ColumnDriver, ColumnPlate}

type (
	// VehicleUsageRecord is one confirmed usage event.
	VehicleUsageRecord struct {
		Date     time.Time
		Driver   string
		Plate    string
		Odometer *float64 // km, optional
		Notes    *string  // optional
	}

	// RawRow is a loosely-typed row as read from the store. A nil cell means
	// the column is absent or the cell is empty.
	RawRow struct {
		Line     int // 1-based row in the source sheet, 0 when unknown
		Date     any
		Driver   any
		Plate    any
		Odometer any
		Notes    any
	}

	// RawTable is a snapshot of the store: header names as read plus rows.
	RawTable struct {
		Columns []string
		Rows    []RawRow
	}
)

var (
	ErrEmptyDate     = errors.New("empty date")
	ErrEmptyDriver   = errors.New("empty driver")
	ErrEmptyPlate    = errors.New("empty plate")
	ErrInvalidKm     = errors.New("invalid odometer")
	ErrNotesTooLong  = errors.New("notes too long (max 500 characters)")
	ErrDriverTooLong = errors.New("driver too long (max 100 characters)")
)

const (
	maxDriverLen = 100
	maxNotesLen  = 500
)

func (r VehicleUsageRecord) Validate() error {
	if r.Date.IsZero() {
		return ErrEmptyDate
	}
	if strings.TrimSpace(r.Driver) == "" {
		return ErrEmptyDriver
	}
	if len(r.Driver) > maxDriverLen {
		return ErrDriverTooLong
	}
	if strings.TrimSpace(r.Plate) == "" {
		return ErrEmptyPlate
	}
	if r.Odometer != nil {
		km := *r.Odometer
		if km < 0 || math.IsNaN(km) || math.IsInf(km, 0) {
			return ErrInvalidKm
		}
	}
	if r.Notes != nil && len(*r.Notes) > maxNotesLen {
		return ErrNotesTooLong
	}
	return nil
}

// Day returns the day of the month of the record date.
func (r VehicleUsageRecord) Day() int {
	return r.Date.Day()
}

// HasColumn reports whether the table header contains name.
func (t RawTable) HasColumn(name string) bool {
	return ColumnIndex(t.Columns, name) >= 0
}

// MissingColumns returns the required columns absent from the header, in
// RequiredColumns order.
func (t RawTable) MissingColumns() []string {
	var missing []string
	for _, c := range RequiredColumns {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// ColumnIndex returns the index of name in headers, or -1.
func ColumnIndex(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// NormalizeDriver trims and uppercases a driver name.
func NormalizeDriver(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizePlate removes every whitespace rune and uppercases a plate.
func NormalizePlate(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// StringPtr returns nil for blank strings, otherwise a pointer to the trimmed value.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
