package adapters

import (
	"context"
	"log/slog"
	"sort"

	"flotta/internal/core"
	"flotta/internal/services"
	"flotta/internal/sheets"
	"flotta/internal/storage"
)

// SQLiteAdapter presents the journal, the record service and an optional
// remote sheet as one sheets.Store. Writes go through the journal; reads
// prefer the remote sheet when one is configured.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.RecordService
	remote  sheets.Store
}

var _ sheets.Store = (*SQLiteAdapter)(nil)

// NewSQLiteAdapter accepts a nil remote; reads then come from the journal.
func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.RecordService, remote sheets.Store) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
		remote:  remote,
	}
}

// AppendRecord implements sheets.RecordWriter
func (a *SQLiteAdapter) AppendRecord(ctx context.Context, rec core.VehicleUsageRecord) (string, error) {
	return a.service.AppendRecord(ctx, rec)
}

// FetchAllRecords implements sheets.RecordReader
func (a *SQLiteAdapter) FetchAllRecords(ctx context.Context) (core.RawTable, error) {
	if a.remote != nil {
		return a.remote.FetchAllRecords(ctx)
	}
	return a.storage.FetchAllRecords(ctx)
}

// FetchDistinctPlates merges the remote sheet's plates with the journal's, so
// plates of records not yet synced are still offered. A failing remote falls
// back to the journal alone.
func (a *SQLiteAdapter) FetchDistinctPlates(ctx context.Context) ([]string, error) {
	local, err := a.storage.FetchDistinctPlates(ctx)
	if err != nil {
		return nil, err
	}
	if a.remote == nil {
		return local, nil
	}

	remote, err := a.remote.FetchDistinctPlates(ctx)
	if err != nil {
		if len(local) == 0 {
			return nil, err
		}
		slog.WarnContext(ctx, "Remote plates unavailable, using journal", "error", err)
		return local, nil
	}

	seen := make(map[string]struct{}, len(local)+len(remote))
	merged := make([]string, 0, len(local)+len(remote))
	for _, p := range append(remote, local...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	sort.Strings(merged)
	return merged, nil
}
