// Package report turns a snapshot of the usage sheet into a monthly summary:
// Normalize validates loose rows, Aggregate groups them by driver and plate,
// Format renders the result for chat.
package report

import (
	"fmt"
	"strings"

	"flotta/internal/core"
)

// Normalize converts raw rows into validated records. Rows with an
// unparsable date or a blank driver or plate are dropped and counted. A
// table missing a required column fails as a whole.
func Normalize(table core.RawTable) ([]core.VehicleUsageRecord, int, error) {
	if missing := table.MissingColumns(); len(missing) > 0 {
		return nil, 0, &core.MissingColumnsError{Missing: missing}
	}

	records := make([]core.VehicleUsageRecord, 0, len(table.Rows))
	dropped := 0
	for _, row := range table.Rows {
		rec, ok := normalizeRow(row)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped, nil
}

func normalizeRow(row core.RawRow) (core.VehicleUsageRecord, bool) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.VehicleUsageRecord{}, false
	}
	driver := core.NormalizeDriver(cellString(row.Driver))
	plate := core.NormalizePlate(cellString(row.Plate))
	if driver == "" || plate == "" {
		return core.VehicleUsageRecord{}, false
	}

	rec := core.VehicleUsageRecord{
		Date:   date,
		Driver: driver,
		Plate:  plate,
		Notes:  core.StringPtr(cellString(row.Notes)),
	}
	// Odometer is informative only; a bad reading never drops the row.
	if km, ok := cellOdometer(row.Odometer); ok {
		rec.Odometer = &km
	}
	return rec, true
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func cellOdometer(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		if x < 0 {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), x >= 0
	case int64:
		return float64(x), x >= 0
	}
	km, err := core.ParseOdometer(cellString(v))
	if err != nil {
		return 0, false
	}
	return km, true
}

// ToRawTable renders records back into the raw shape the store returns.
// Dates use the textual layout the store adapters write; readings stay
// numeric, as the Sheets API returns number cells.
func ToRawTable(records []core.VehicleUsageRecord) core.RawTable {
	table := core.RawTable{
		Columns: []string{core.ColumnDate, core.ColumnDriver, core.ColumnPlate, core.ColumnOdometer, core.ColumnNotes},
		Rows:    make([]core.RawRow, 0, len(records)),
	}
	for i, r := range records {
		row := core.RawRow{
			Line:   i + 2,
			Date:   core.FormatDate(r.Date),
			Driver: r.Driver,
			Plate:  r.Plate,
		}
		if r.Odometer != nil {
			row.Odometer = *r.Odometer
		}
		if r.Notes != nil {
			row.Notes = *r.Notes
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
