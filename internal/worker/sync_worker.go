package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flotta/internal/amqp"
	applog "flotta/internal/log"
	ports "flotta/internal/sheets"
	"flotta/internal/storage"
)

// Journal is the part of the SQLite journal the worker needs.
type Journal interface {
	GetRecord(ctx context.Context, id int64) (*storage.Record, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id int64, sheetsRef string) error
	MarkSyncError(ctx context.Context, id int64, cause error) error
}

// SyncResult counts the outcome of one sweep.
type SyncResult struct {
	Synced int
	Failed int
}

// SyncWorker copies journaled usage records to the sheet.
type SyncWorker struct {
	journal   Journal
	sheets    ports.RecordWriter
	batchSize int
}

func NewSyncWorker(journal Journal, sheets ports.RecordWriter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		journal:   journal,
		sheets:    sheets,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single record sync message from AMQP.
// Returning an error requeues the message.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		applog.FieldRecordID, msg.ID,
		"version", msg.Version)

	rec, err := w.journal.GetRecord(ctx, msg.ID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		slog.WarnContext(ctx, "Sync message for unknown record, dropping", applog.FieldRecordID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get record from journal: %w", err)
	}

	switch {
	case rec.SyncStatus == storage.SyncSynced:
		slog.DebugContext(ctx, "Record already synced", applog.FieldRecordID, rec.ID, applog.FieldRowRef, rec.SheetsRef)
		return nil
	case msg.Version < rec.Version:
		slog.DebugContext(ctx, "Stale sync message", applog.FieldRecordID, rec.ID, "version", msg.Version, "current", rec.Version)
		return nil
	case rec.SyncAttempts >= storage.MaxSyncAttempts:
		slog.ErrorContext(ctx, "Record exceeded sync attempts, dropping message",
			applog.FieldRecordID, rec.ID, "attempts", rec.SyncAttempts, "last_error", rec.LastError)
		return nil
	}

	return w.syncRecord(ctx, rec)
}

// ProcessPendingRecords syncs one batch of records that haven't reached the
// sheet yet. It backs up AMQP delivery in case messages are lost.
func (w *SyncWorker) ProcessPendingRecords(ctx context.Context) error {
	_, err := w.sweep(ctx, w.batchSize)
	return err
}

// Sweep is ProcessPendingRecords with counts, for operator tooling.
func (w *SyncWorker) Sweep(ctx context.Context) (SyncResult, error) {
	return w.sweep(ctx, w.batchSize)
}

// StartupSyncCheck syncs a larger batch at worker startup to recover from
// missed messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	res, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if res.Synced+res.Failed == 0 {
		slog.InfoContext(ctx, "No pending records found on startup", applog.FieldOperation, applog.OpStartup)
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		applog.FieldOperation, applog.OpStartup,
		"synced", res.Synced,
		"errors", res.Failed)
	return nil
}

func (w *SyncWorker) sweep(ctx context.Context, limit int) (SyncResult, error) {
	var res SyncResult

	pending, err := w.journal.GetPendingSync(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("get pending records: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}

	slog.InfoContext(ctx, "Processing pending records", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		rec, err := w.journal.GetRecord(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get record", applog.FieldRecordID, p.ID, applog.FieldError, err)
			res.Failed++
			continue
		}

		if err := w.syncRecord(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "Failed to sync record",
				applog.FieldOperation, applog.OpSync,
				applog.FieldRecordID, p.ID,
				applog.FieldError, err)
			res.Failed++
			continue
		}
		res.Synced++
	}

	return res, nil
}

func (w *SyncWorker) syncRecord(ctx context.Context, rec *storage.Record) error {
	ref, err := w.sheets.AppendRecord(ctx, rec.VehicleUsageRecord)
	if err != nil {
		if markErr := w.journal.MarkSyncError(ctx, rec.ID, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", applog.FieldRecordID, rec.ID, applog.FieldError, markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	// The row is in the sheet; a bookkeeping failure here only risks a duplicate on retry.
	if err := w.journal.MarkSynced(ctx, rec.ID, ref); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", applog.FieldRecordID, rec.ID, applog.FieldError, err)
	}

	slog.InfoContext(ctx, "Successfully synced record",
		applog.FieldRecordID, rec.ID,
		applog.FieldRowRef, ref,
		applog.FieldPlate, rec.Plate,
		applog.FieldDriver, rec.Driver)

	return nil
}
