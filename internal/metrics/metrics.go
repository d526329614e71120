package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Chat metrics
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotta_updates_total",
			Help: "Total chat updates handled",
		},
		[]string{"kind"},
	)

	AccessDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotta_access_denied_total",
			Help: "Operations rejected by the access list",
		},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotta_sessions_total",
			Help: "Entry sessions by final outcome",
		},
		[]string{"outcome"},
	)

	ReportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotta_reports_total",
			Help: "Report requests by outcome",
		},
		[]string{"outcome"},
	)

	// Store metrics
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flotta_store_operation_duration_seconds",
			Help:    "Latency of usage store calls",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "op"},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotta_store_errors_total",
			Help: "Failed usage store calls",
		},
		[]string{"backend", "op"},
	)

	PlatesCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotta_plates_cache_hits_total",
			Help: "Plate list served from cache",
		},
	)

	PlatesCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotta_plates_cache_misses_total",
			Help: "Plate list fetched from the store",
		},
	)

	// Sync metrics
	SyncMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotta_sync_messages_total",
			Help: "Journal sync messages by result",
		},
		[]string{"result"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotta_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		UpdatesTotal,
		AccessDenied,
		SessionsTotal,
		ReportsGenerated,
		StoreOperationDuration,
		StoreErrors,
		PlatesCacheHits,
		PlatesCacheMisses,
		SyncMessagesTotal,
		HTTPRequestsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStore records the latency and outcome of one store call.
func ObserveStore(backend, op string, start time.Time, err error) {
	StoreOperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(backend, op).Inc()
	}
}
