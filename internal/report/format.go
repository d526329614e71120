package report

import (
	"fmt"
	"strconv"
	"strings"

	"flotta/internal/core"
)

var monthNames = [...]string{
	"Gennaio", "Febbraio", "Marzo", "Aprile", "Maggio", "Giugno",
	"Luglio", "Agosto", "Settembre", "Ottobre", "Novembre", "Dicembre",
}

// MonthName returns the Italian name of month (1-12).
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return strconv.Itoa(month)
	}
	return monthNames[month-1]
}

// Format renders groups as a chat message.
func Format(groups []core.ReportGroup, month, year int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Report %s %d\n\n", MonthName(month), year)
	for _, g := range groups {
		days := make([]string, len(g.Days))
		for i, d := range g.Days {
			days[i] = strconv.Itoa(d)
		}
		unit := "giorni"
		if g.DayCount == 1 {
			unit = "giorno"
		}
		fmt.Fprintf(&b, "👤 %s\n🚗 %s: %d %s (%s)\n\n", g.Driver, g.Plate, g.DayCount, unit, strings.Join(days, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
