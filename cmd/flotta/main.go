package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"flotta/internal/access"
	"flotta/internal/backend"
	"flotta/internal/bot"
	"flotta/internal/cache"
	"flotta/internal/cli"
	"flotta/internal/config"
	apphttp "flotta/internal/http"
	applog "flotta/internal/log"
	"flotta/internal/report"
	"flotta/internal/services"
	"flotta/internal/session"
	"flotta/internal/session/redisstore"
	"flotta/internal/sheets"
	"flotta/internal/telegram"
	"flotta/internal/worker"
)

const (
	shutdownTimeout = 15 * time.Second
	cacheSweepEvery = time.Minute
	maxSessions     = 10000
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp, (*config.Config).ValidateBot)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Bot stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", "error", err)
		}
	}()

	store, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	auth := access.New(cfg.AuthorizedUsers)
	if auth.Len() == 0 {
		logger.Warn("No authorized users configured, /nuovo is disabled")
	}
	loc := cfg.Location()

	sessions := session.NewManager(auth, store, session.Config{
		IdleTimeout: cfg.SessionIdleTimeout,
		Location:    loc,
		Logger:      logger,
	})
	plates := sheets.NewCachedPlates(res.Store, cfg.PlatesCacheTTL)
	reports := report.NewService(res.Store)

	tg, err := telegram.New(cfg.TelegramToken, logger)
	if err != nil {
		return err
	}
	dispatcher := bot.New(tg, sessions, plates, res.Store, reports, bot.Config{
		Auth:               auth,
		ReportRequiresAuth: cfg.ReportRequiresAuth,
		Location:           loc,
		Logger:             logger,
	})

	caches := cache.NewManager()
	caches.Register("plates", plates)
	caches.Register("report_pickers", dispatcher)
	if mem, ok := store.(*session.MemoryStore); ok {
		caches.Register("sessions", mem)
	}
	caches.StartCleanup(ctx, cacheSweepEvery)
	defer caches.Stop()

	// The report endpoint has no chat identity to check.
	var httpReports apphttp.Reporter
	if !cfg.ReportRequiresAuth {
		httpReports = reports
	}
	var ready func(context.Context) error
	if res.Journal != nil {
		ready = res.Journal.Ping
	}
	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Plates:   plates,
		Reports:  httpReports,
		Ready:    ready,
		Logger:   logger,
		Location: loc,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tg.Run(gctx, dispatcher) })
	g.Go(func() error { return srv.Run(gctx, shutdownTimeout) })

	// Without a broker the journal is drained in process.
	if res.Journal != nil && cfg.AMQPURL == "" && bcfg.HasSheets() {
		client, err := backend.NewSheetsClient(ctx, bcfg)
		if err != nil {
			return fmt.Errorf("sheets client for in-process sync: %w", err)
		}
		w := worker.NewSyncWorker(res.Journal, client, cfg.SyncBatchSize)
		proc := services.NewSyncProcessor(w, services.SyncProcessorConfig{
			PollInterval: cfg.SyncInterval,
			SweepOnStart: true,
		})
		g.Go(func() error {
			if err := proc.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return proc.Stop(stopCtx)
		})
	}

	logger.Info("Flotta bot started",
		"backend", bcfg.Type.String(),
		"session_backend", cfg.SessionBackend,
		"port", cfg.Port)
	return g.Wait()
}

// openSessionStore keeps sessions for twice the idle timeout so the manager,
// not the store, decides when a session has expired.
func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	retention := 2 * cfg.SessionIdleTimeout
	switch cfg.SessionBackend {
	case "redis":
		rs, err := redisstore.Open(ctx, cfg.RedisURL, retention)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	default:
		return session.NewMemoryStore(retention, maxSessions), func() {}, nil
	}
}
