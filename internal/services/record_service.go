package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"flotta/internal/amqp"
	"flotta/internal/core"
	ports "flotta/internal/sheets"
	"flotta/internal/storage"
)

// Journal is the local write-ahead store for confirmed records.
type Journal interface {
	Insert(ctx context.Context, rec core.VehicleUsageRecord) (int64, error)
}

// RecordService saves records locally and announces them for sync.
type RecordService struct {
	journal   Journal
	publisher amqp.Publisher
}

var _ ports.RecordWriter = (*RecordService)(nil)

// NewRecordService accepts a nil publisher; records then wait for the
// periodic sweep.
func NewRecordService(journal Journal, publisher amqp.Publisher) *RecordService {
	return &RecordService{
		journal:   journal,
		publisher: publisher,
	}
}

// AppendRecord journals the record and publishes a sync message. A publish
// failure is logged only: the record is safe locally and the sweep resends it.
func (s *RecordService) AppendRecord(ctx context.Context, rec core.VehicleUsageRecord) (string, error) {
	id, err := s.journal.Insert(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}

	if err := s.publishSyncMessage(ctx, id, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", id, "error", err)
	}

	return storage.RowRefPrefix + strconv.FormatInt(id, 10), nil
}

func (s *RecordService) publishSyncMessage(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, record left for sweep", "id", id)
		return nil
	}
	return s.publisher.PublishRecordSync(ctx, id, version)
}

// Close closes the journal and the publisher when they hold resources.
func (s *RecordService) Close() error {
	var errs []error
	if c, ok := s.journal.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
