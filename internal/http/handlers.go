package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"flotta/internal/core"
	"flotta/internal/log"
)

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type platesResponse struct {
	Plates []string `json:"plates"`
	Count  int      `json:"count"`
}

type reportGroup struct {
	Driver   string `json:"driver"`
	Plate    string `json:"plate"`
	DayCount int    `json:"day_count"`
	Days     []int  `json:"days"`
}

type reportResponse struct {
	Year    int           `json:"year"`
	Month   int           `json:"month"`
	Groups  []reportGroup `json:"groups"`
	Dropped int           `json:"dropped"`
	Text    string        `json:"text"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

func (s *Server) handlePlates(w http.ResponseWriter, r *http.Request) {
	plates, err := s.plates.FetchDistinctPlates(r.Context())
	if err != nil {
		s.fail(w, r, log.OpPlates, err)
		return
	}
	if plates == nil {
		plates = []string{}
	}
	writeJSON(w, http.StatusOK, platesResponse{Plates: plates, Count: len(plates)})
}

// handleReport serves /api/report?year=&month=. Missing parameters default to
// the current month; format=json selects the structured body.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r, s.now().In(s.loc))
	if err != nil {
		s.fail(w, r, log.OpReport, err)
		return
	}

	rep, err := s.reports.Generate(r.Context(), month, year)
	if err != nil {
		s.fail(w, r, log.OpReport, err)
		return
	}

	if r.URL.Query().Get("format") != "json" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(rep.Text))
		return
	}

	groups := make([]reportGroup, 0, len(rep.Groups))
	for _, g := range rep.Groups {
		groups = append(groups, reportGroup{Driver: g.Driver, Plate: g.Plate, DayCount: g.DayCount, Days: g.Days})
	}
	writeJSON(w, http.StatusOK, reportResponse{
		Year:    rep.Year,
		Month:   rep.Month,
		Groups:  groups,
		Dropped: rep.Dropped,
		Text:    rep.Text,
	})
}

// parseYearMonth reads year and month from the query, defaulting each to
// now. Out of range values are ErrInvalidPeriod.
func parseYearMonth(r *http.Request, now time.Time) (year, month int, err error) {
	q := r.URL.Query()
	year, month = now.Year(), int(now.Month())
	if v := q.Get("year"); v != "" {
		y, convErr := strconv.Atoi(v)
		if convErr != nil || y < 1900 || y > 9999 {
			return 0, 0, fmt.Errorf("%w: year %q", core.ErrInvalidPeriod, v)
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, convErr := strconv.Atoi(v)
		if convErr != nil || m < 1 || m > 12 {
			return 0, 0, fmt.Errorf("%w: month %q", core.ErrInvalidPeriod, v)
		}
		month = m
	}
	return year, month, nil
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoData), errors.Is(err, core.ErrNoDataForPeriod):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrMissingColumns):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= 500 {
		// Store errors may carry backend details; keep them in the log.
		logger.ErrorContext(r.Context(), "Request failed", log.FieldOperation, op, log.FieldError, err)
		writeError(w, status, http.StatusText(status))
		return
	}
	logger.InfoContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
