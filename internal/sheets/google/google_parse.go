package google

import (
	"fmt"
	"strings"

	"flotta/internal/core"
)

// parseValues converts a values matrix (as returned by the Sheets API) into
// a RawTable. The first row is the header; blank rows are skipped and cells
// beyond a short row are treated as empty.
func parseValues(values [][]any) core.RawTable {
	if len(values) == 0 {
		return core.RawTable{}
	}
	headers := toStrings(values[0])
	cols := columnsOf(headers)

	table := core.RawTable{Columns: headers}
	for i := 1; i < len(values); i++ {
		row := values[i]
		if blankRow(row) {
			continue
		}
		table.Rows = append(table.Rows, core.RawRow{
			Line:     i + 1,
			Date:     cell(row, cols.date),
			Driver:   cell(row, cols.driver),
			Plate:    cell(row, cols.plate),
			Odometer: cell(row, cols.odometer),
			Notes:    cell(row, cols.notes),
		})
	}
	return table
}

type columnPositions struct {
	date, driver, plate, odometer, notes int
}

func columnsOf(headers []string) columnPositions {
	return columnPositions{
		date:     core.ColumnIndex(headers, core.ColumnDate),
		driver:   core.ColumnIndex(headers, core.ColumnDriver),
		plate:    core.ColumnIndex(headers, core.ColumnPlate),
		odometer: core.ColumnIndex(headers, core.ColumnOdometer),
		notes:    core.ColumnIndex(headers, core.ColumnNotes),
	}
}

// cell returns nil for absent columns and empty cells.
func cell(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	v := row[idx]
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return v
}

func blankRow(row []any) bool {
	for _, v := range row {
		if v != nil && strings.TrimSpace(fmt.Sprint(v)) != "" {
			return false
		}
	}
	return true
}

// defaultHeader is written to an empty sheet before the first append.
var defaultHeader = []any{core.ColumnDate, core.ColumnDriver, core.ColumnPlate, core.ColumnOdometer, core.ColumnNotes}

// buildRow places rec under the header positions. Optional columns missing
// from the header are not written.
func buildRow(headers []string, rec core.VehicleUsageRecord) ([]any, error) {
	if missing := (core.RawTable{Columns: headers}).MissingColumns(); len(missing) > 0 {
		return nil, &core.MissingColumnsError{Missing: missing}
	}
	cols := columnsOf(headers)

	width := 0
	for _, idx := range []int{cols.date, cols.driver, cols.plate, cols.odometer, cols.notes} {
		if idx+1 > width {
			width = idx + 1
		}
	}
	row := make([]any, width)
	for i := range row {
		row[i] = ""
	}
	row[cols.date] = core.FormatDate(rec.Date)
	row[cols.driver] = rec.Driver
	row[cols.plate] = rec.Plate
	if cols.odometer >= 0 && rec.Odometer != nil {
		row[cols.odometer] = *rec.Odometer
	}
	if cols.notes >= 0 && rec.Notes != nil {
		row[cols.notes] = *rec.Notes
	}
	return row, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// a1 quotes a sheet name for use in an A1 range.
func a1(sheet, rng string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + rng
}
