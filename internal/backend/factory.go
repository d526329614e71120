package backend

import (
	"context"
	"fmt"
	"log/slog"

	"flotta/internal/adapters"
	"flotta/internal/amqp"
	"flotta/internal/services"
	"flotta/internal/sheets"
	"flotta/internal/sheets/google"
	"flotta/internal/sheets/memory"
	"flotta/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// NewSheetsClient builds the Google Sheets store from config.
func NewSheetsClient(ctx context.Context, config Config) (*google.Client, error) {
	opts, err := google.ClientOptions(ctx, config.Credentials)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	return google.New(ctx, config.Sheets, opts...)
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	if seeds := memory.LoadSeedPlates(dataDir(config)); len(seeds) > 0 {
		if _, err := repo.AddPlates(ctx, seeds); err != nil {
			f.logger.Warn("Failed to register seed plates", "error", err)
		}
	}

	// AMQP is optional: without it records wait for the periodic sweep.
	var publisher amqp.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync messages", "error", err)
		} else {
			publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	var remote sheets.Store
	if config.HasSheets() {
		client, err := NewSheetsClient(ctx, config)
		if err != nil {
			f.logger.Warn("Google Sheets unavailable, reports read the local journal", "error", err)
		} else {
			remote = client
		}
	}

	service := services.NewRecordService(repo, publisher)
	adapter := adapters.NewSQLiteAdapter(repo, service, remote)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil,
		"reports_from_sheets", remote != nil)

	return &BackendResult{
		Store:   adapter,
		Journal: repo,
		Cleanup: service.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := NewSheetsClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "sheet", config.Sheets.SheetName)

	return &BackendResult{Store: client}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dir := dataDir(config)
	store := memory.NewFromFiles(dir)

	f.logger.Info("Initialized memory backend", "data_directory", dir)

	return &BackendResult{Store: store}, nil
}

func dataDir(config Config) string {
	if config.DataDirectory == "" {
		return "data"
	}
	return config.DataDirectory
}
