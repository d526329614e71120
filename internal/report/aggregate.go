package report

import (
	"fmt"
	"sort"

	"flotta/internal/core"
)

type groupKey struct {
	driver string
	plate  string
}

// Aggregate groups the records of one month by (driver, plate).
//
// Groups are ordered by driver ascending, then day count descending; equal
// driver and day count fall back to plate ascending so the output is fully
// deterministic.
func Aggregate(records []core.VehicleUsageRecord, month, year int) ([]core.ReportGroup, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month %d", core.ErrInvalidPeriod, month)
	}

	var (
		order  []groupKey
		groups = map[groupKey]*core.ReportGroup{}
		seen   = map[groupKey]map[int]struct{}{}
	)
	for _, r := range records {
		if r.Date.Year() != year || int(r.Date.Month()) != month {
			continue
		}
		k := groupKey{driver: core.NormalizeDriver(r.Driver), plate: core.NormalizePlate(r.Plate)}
		g, ok := groups[k]
		if !ok {
			g = &core.ReportGroup{Driver: k.driver, Plate: k.plate}
			groups[k] = g
			seen[k] = map[int]struct{}{}
			order = append(order, k)
		}
		// Records are calendar dates, so within one month the day number
		// identifies the calendar day.
		day := r.Date.Day()
		if _, dup := seen[k][day]; dup {
			continue
		}
		seen[k][day] = struct{}{}
		g.Days = append(g.Days, day)
		g.DayCount++
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: %02d/%d", core.ErrNoDataForPeriod, month, year)
	}

	out := make([]core.ReportGroup, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Driver != b.Driver {
			return a.Driver < b.Driver
		}
		if a.DayCount != b.DayCount {
			return a.DayCount > b.DayCount
		}
		return a.Plate < b.Plate
	})
	return out, nil
}
