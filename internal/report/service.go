package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"flotta/internal/core"
	"flotta/internal/metrics"
	"flotta/internal/sheets"
)

// Service runs the report pipeline against a store snapshot.
type Service struct {
	reader sheets.RecordReader
}

func NewService(reader sheets.RecordReader) *Service {
	return &Service{reader: reader}
}

// Generate fetches every row once and builds the report for month/year.
// ErrNoData means the store is empty; ErrNoDataForPeriod means it has rows,
// none of them in the requested month.
func (s *Service) Generate(ctx context.Context, month, year int) (core.Report, error) {
	rep, err := s.generate(ctx, month, year)
	metrics.ReportsGenerated.WithLabelValues(outcomeLabel(err)).Inc()
	return rep, err
}

func (s *Service) generate(ctx context.Context, month, year int) (core.Report, error) {
	if month < 1 || month > 12 || year < 1900 || year > 9999 {
		return core.Report{}, fmt.Errorf("%w: %d/%d", core.ErrInvalidPeriod, month, year)
	}

	table, err := s.reader.FetchAllRecords(ctx)
	if err != nil {
		return core.Report{}, fmt.Errorf("fetch records: %w", err)
	}
	if len(table.Rows) == 0 {
		return core.Report{}, core.ErrNoData
	}

	records, dropped, err := Normalize(table)
	if err != nil {
		slog.ErrorContext(ctx, "Usage sheet is malformed", "error", err, "columns", table.Columns)
		return core.Report{}, err
	}
	if dropped > 0 {
		slog.WarnContext(ctx, "Dropped unusable rows", "dropped", dropped, "total", len(table.Rows))
	}

	groups, err := Aggregate(records, month, year)
	if err != nil {
		return core.Report{Year: year, Month: month, Dropped: dropped}, err
	}

	slog.InfoContext(ctx, "Report generated",
		"month", month,
		"year", year,
		"groups", len(groups),
		"records", len(records),
		"dropped", dropped)

	return core.Report{
		Year:    year,
		Month:   month,
		Groups:  groups,
		Dropped: dropped,
		Text:    Format(groups, month, year),
	}, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrNoData):
		return "no_data"
	case errors.Is(err, core.ErrNoDataForPeriod):
		return "no_data_for_period"
	case errors.Is(err, core.ErrMissingColumns):
		return "missing_columns"
	case errors.Is(err, core.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, core.ErrInvalidPeriod):
		return "invalid_period"
	default:
		return "error"
	}
}

// ParsePeriod reads a report period typed after the command. Accepted forms:
// "3 2024", "03/2024", "3-2024", "2024-03", "marzo 2024", "marzo" and "3"
// (the last two use the year of now). ok is false when args is blank.
func ParsePeriod(args string, now time.Time) (month, year int, ok bool, err error) {
	args = strings.TrimSpace(strings.ToLower(args))
	if args == "" {
		return 0, 0, false, nil
	}
	fields := strings.FieldsFunc(args, func(r rune) bool {
		return r == ' ' || r == '/' || r == '-' || r == '.'
	})

	bad := func() (int, int, bool, error) {
		return 0, 0, false, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, args)
	}

	switch len(fields) {
	case 1:
		month = parseMonth(fields[0])
		year = now.Year()
	case 2:
		a, b := fields[0], fields[1]
		// 2024-03 puts the year first.
		if len(a) == 4 {
			a, b = b, a
		}
		month = parseMonth(a)
		y, convErr := strconv.Atoi(b)
		if convErr != nil {
			return bad()
		}
		year = y
	default:
		return bad()
	}
	if month == 0 || year < 1900 || year > 9999 {
		return bad()
	}
	return month, year, true, nil
}

func parseMonth(s string) int {
	if m, err := strconv.Atoi(s); err == nil {
		if m >= 1 && m <= 12 {
			return m
		}
		return 0
	}
	for i, name := range monthNames {
		lower := strings.ToLower(name)
		if s == lower || (len(s) >= 3 && strings.HasPrefix(lower, s)) {
			return i + 1
		}
	}
	return 0
}
