// Package http serves the operational surface of the bot: health, metrics,
// the plate list and monthly reports.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"flotta/internal/core"
	"flotta/internal/log"
	"flotta/internal/metrics"
	"flotta/internal/middleware/ratelimit"
	"flotta/internal/middleware/security"
	"flotta/internal/middleware/trace"
	"flotta/internal/sheets"
)

// Reporter builds monthly reports.
type Reporter interface {
	Generate(ctx context.Context, month, year int) (core.Report, error)
}

// Options wires a Server. Reports is nil when the report endpoint must not be
// exposed.
type Options struct {
	Plates            sheets.PlateLister
	Reports           Reporter
	Ready             func(ctx context.Context) error
	RequestsPerMinute int
	TrustedProxies    []string
	Logger            *log.Logger
	Now               func() time.Time
	Location          *time.Location
}

type Server struct {
	http.Server
	plates      sheets.PlateLister
	reports     Reporter
	ready       func(ctx context.Context) error
	rateLimiter *ratelimit.Limiter
	logger      *log.Logger
	now         func() time.Time
	loc         *time.Location

	shutdownOnce sync.Once
}

func NewServer(addr string, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		plates:      opts.Plates,
		reports:     opts.Reports,
		ready:       opts.Ready,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		logger:      logger.WithComponent(log.ComponentHTTP),
		now:         opts.Now,
		loc:         opts.Location,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	limited := s.rateLimiter.Middleware(clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
	mux.Handle("GET /api/plates", limited(http.HandlerFunc(s.handlePlates)))
	if s.reports != nil {
		mux.Handle("GET /api/report", limited(http.HandlerFunc(s.handleReport)))
	}

	tracer := trace.NewMiddleware(clientIP.Extract, logger)
	s.Addr = addr
	s.Handler = tracer.Middleware(security.Headers(mux))
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s, nil
}

// Shutdown stops the rate limiter and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(s.rateLimiter.Stop)
	return s.Server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return <-errc
}
