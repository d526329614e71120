package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flotta/internal/core"
	"flotta/internal/log"
	"flotta/internal/report"
	"flotta/internal/sheets/memory"
)

type failingPlates struct{}

func (failingPlates) FetchDistinctPlates(context.Context) ([]string, error) {
	return nil, core.StoreUnavailable("read", errors.New("credentials rejected by backend"))
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Output: io.Discard})
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC) }
	}
	srv, err := NewServer(":0", opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New([]string{"XY999ZZ"})
	for _, day := range []int{4, 5, 5} {
		_, err := store.AppendRecord(context.Background(), core.VehicleUsageRecord{
			Date:   time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
			Driver: "MARIO",
			Plate:  "AB123CD",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestHealthReadyMetrics(t *testing.T) {
	notReady := errors.New("journal closed")
	srv := newTestServer(t, Options{Plates: memory.New(nil), Ready: func(context.Context) error { return notReady }})

	if rr := get(t, srv, "/healthz"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body)
	}
	if rr := get(t, srv, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", rr.Code)
	}
	rr := get(t, srv, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "flotta_http_requests_total") {
		t.Fatalf("metrics = %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
}

func TestPlates(t *testing.T) {
	srv := newTestServer(t, Options{Plates: seededStore(t)})

	rr := get(t, srv, "/api/plates")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var body platesResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || body.Plates[0] != "AB123CD" || body.Plates[1] != "XY999ZZ" {
		t.Fatalf("plates = %+v", body)
	}
}

func TestPlatesStoreUnavailable(t *testing.T) {
	srv := newTestServer(t, Options{Plates: failingPlates{}})
	rr := get(t, srv, "/api/plates")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "credentials") {
		t.Fatalf("backend detail leaked: %s", rr.Body)
	}
}

func TestReport(t *testing.T) {
	store := seededStore(t)
	srv := newTestServer(t, Options{Plates: store, Reports: report.NewService(store)})

	rr := get(t, srv, "/api/report")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Report Marzo 2024") {
		t.Fatalf("default period report = %d %s", rr.Code, rr.Body)
	}

	rr = get(t, srv, "/api/report?year=2024&month=3&format=json")
	var body reportResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Groups) != 1 || body.Groups[0].DayCount != 2 || body.Groups[0].Plate != "AB123CD" {
		t.Fatalf("json report = %+v", body)
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/api/report?year=2024&month=13", http.StatusBadRequest},
		{"/api/report?year=abc", http.StatusBadRequest},
		{"/api/report?year=2023&month=3", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rr := get(t, srv, tt.target); rr.Code != tt.want {
			t.Errorf("%s = %d, want %d", tt.target, rr.Code, tt.want)
		}
	}
}

func TestReportNotMountedWithoutReporter(t *testing.T) {
	srv := newTestServer(t, Options{Plates: memory.New(nil)})
	if rr := get(t, srv, "/api/report?year=2024&month=3"); rr.Code != http.StatusNotFound {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{Plates: memory.New(nil), RequestsPerMinute: 1})
	var last int
	for i := 0; i < 20; i++ {
		last = get(t, srv, "/api/plates").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d", last)
	}
	if rr := get(t, srv, "/healthz"); rr.Code != http.StatusOK {
		t.Fatal("health checks must not be rate limited")
	}
}
