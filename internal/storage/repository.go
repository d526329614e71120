package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"flotta/internal/core"
	"flotta/internal/metrics"
	ports "flotta/internal/sheets"

	_ "modernc.org/sqlite"
)

const backendLabel = "sqlite"

// MaxSyncAttempts bounds how often a failing record is offered for sync again.
const MaxSyncAttempts = 5

// RowRefPrefix marks row references handed out by the journal.
const RowRefPrefix = "sqlite:"

var ErrRecordNotFound = errors.New("record not found")

// SyncStatus is the sync state of a journaled record.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// Record is a journaled usage record with its sync bookkeeping.
type Record struct {
	ID int64
	core.VehicleUsageRecord
	Version      int64
	SyncStatus   SyncStatus
	SyncAttempts int
	SheetsRef    string
	LastError    string
	CreatedAt    time.Time
}

// PendingSync represents minimal data needed for sync queue messages
type PendingSync struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// SyncStats counts journal rows per sync status.
type SyncStats struct {
	Pending int
	Synced  int
	Errored int
}

type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Insert journals a validated record as pending and returns its id.
func (r *SQLiteRepository) Insert(ctx context.Context, rec core.VehicleUsageRecord) (id int64, err error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	defer func(start time.Time) { metrics.ObserveStore(backendLabel, "insert", start, err) }(time.Now())

	var km sql.NullFloat64
	if rec.Odometer != nil {
		km = sql.NullFloat64{Float64: *rec.Odometer, Valid: true}
	}
	var notes sql.NullString
	if rec.Notes != nil {
		notes = sql.NullString{String: *rec.Notes, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_records (usage_date, driver, plate, odometer_km, notes) VALUES (?, ?, ?, ?, ?)`,
		core.FormatDate(rec.Date), rec.Driver, core.NormalizePlate(rec.Plate), km, notes)
	if err != nil {
		return 0, core.StoreUnavailable("insert record", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, core.StoreUnavailable("insert record", err)
	}

	slog.InfoContext(ctx, "Usage record saved to SQLite",
		"id", id,
		"plate", rec.Plate,
		"driver", rec.Driver,
		"date", core.FormatDate(rec.Date))
	return id, nil
}

// AppendRecord implements sheets.RecordWriter.
func (r *SQLiteRepository) AppendRecord(ctx context.Context, rec core.VehicleUsageRecord) (string, error) {
	id, err := r.Insert(ctx, rec)
	if err != nil {
		return "", err
	}
	return RowRefPrefix + strconv.FormatInt(id, 10), nil
}

// FetchAllRecords implements sheets.RecordReader with journal order.
func (r *SQLiteRepository) FetchAllRecords(ctx context.Context) (table core.RawTable, err error) {
	defer func(start time.Time) { metrics.ObserveStore(backendLabel, "fetch_all", start, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx,
		`SELECT usage_date, driver, plate, odometer_km, notes FROM usage_records ORDER BY id`)
	if err != nil {
		return core.RawTable{}, core.StoreUnavailable("fetch records", err)
	}
	defer rows.Close()

	table.Columns = []string{core.ColumnDate, core.ColumnDriver, core.ColumnPlate, core.ColumnOdometer, core.ColumnNotes}
	line := 1
	for rows.Next() {
		var (
			date, driver, plate string
			km                  sql.NullFloat64
			notes               sql.NullString
		)
		if err := rows.Scan(&date, &driver, &plate, &km, &notes); err != nil {
			return core.RawTable{}, core.StoreUnavailable("scan record", err)
		}
		line++
		row := core.RawRow{Line: line, Date: date, Driver: driver, Plate: plate}
		if km.Valid {
			row.Odometer = km.Float64
		}
		if notes.Valid {
			row.Notes = notes.String
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return core.RawTable{}, core.StoreUnavailable("fetch records", err)
	}
	return table, nil
}

// FetchDistinctPlates returns the registered fleet plus every journaled plate.
func (r *SQLiteRepository) FetchDistinctPlates(ctx context.Context) (plates []string, err error) {
	defer func(start time.Time) { metrics.ObserveStore(backendLabel, "plates", start, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx,
		`SELECT plate FROM fleet_plates UNION SELECT plate FROM usage_records ORDER BY plate`)
	if err != nil {
		return nil, core.StoreUnavailable("fetch plates", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, core.StoreUnavailable("scan plate", err)
		}
		if p = core.NormalizePlate(p); p != "" {
			plates = append(plates, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, core.StoreUnavailable("fetch plates", err)
	}
	return plates, nil
}

// AddPlates registers fleet plates and returns how many were new.
func (r *SQLiteRepository) AddPlates(ctx context.Context, plates []string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, p := range plates {
		p = core.NormalizePlate(p)
		if p == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO fleet_plates (plate) VALUES (?)`, p)
		if err != nil {
			return 0, fmt.Errorf("insert plate %s: %w", p, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit plates: %w", err)
	}
	if added > 0 {
		slog.InfoContext(ctx, "Fleet plates registered", "added", added)
	}
	return added, nil
}

// GetRecord retrieves a single journaled record by ID.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id int64) (*Record, error) {
	var (
		rec              Record
		date, status     string
		created          string
		km               sql.NullFloat64
		notes, ref, last sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, usage_date, driver, plate, odometer_km, notes, version,
		       sync_status, sync_attempts, sheets_ref, last_error,
		       strftime('%Y-%m-%dT%H:%M:%SZ', created_at)
		FROM usage_records WHERE id = ?`, id).
		Scan(&rec.ID, &date, &rec.Driver, &rec.Plate, &km, &notes, &rec.Version,
			&status, &rec.SyncAttempts, &ref, &last, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record by id: %w", err)
	}

	if rec.Date, err = core.ParseDate(date); err != nil {
		return nil, fmt.Errorf("record %d: %w", id, err)
	}
	if km.Valid {
		rec.Odometer = &km.Float64
	}
	if notes.Valid {
		rec.Notes = &notes.String
	}
	rec.SyncStatus = SyncStatus(status)
	rec.SheetsRef = ref.String
	rec.LastError = last.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &rec, nil
}

// GetPendingSync returns records waiting to reach the sheet, oldest first.
// Records that failed fewer than MaxSyncAttempts times are included.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, strftime('%Y-%m-%dT%H:%M:%SZ', created_at)
		FROM usage_records
		WHERE sync_status = 'pending' OR (sync_status = 'error' AND sync_attempts < ?)
		ORDER BY created_at, id
		LIMIT ?`, MaxSyncAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync records: %w", err)
	}
	defer rows.Close()

	var out []PendingSync
	for rows.Next() {
		var (
			p       PendingSync
			created string
		)
		if err := rows.Scan(&p.ID, &p.Version, &created); err != nil {
			return nil, fmt.Errorf("scan pending record: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks a record as successfully synced
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64, sheetsRef string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE usage_records
		SET sync_status = 'synced', sheets_ref = ?, last_error = NULL, synced_at = CURRENT_TIMESTAMP
		WHERE id = ?`, sheetsRef, id)
	if err != nil {
		return fmt.Errorf("mark record synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}

	slog.InfoContext(ctx, "Usage record marked as synced", "id", id, "row_ref", sheetsRef)
	return nil
}

// MarkSyncError records a failed sync attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = truncate(cause.Error(), 500)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE usage_records
		SET sync_status = 'error', sync_attempts = sync_attempts + 1, last_error = ?
		WHERE id = ?`, msg, id)
	if err != nil {
		return fmt.Errorf("mark record sync error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}

	slog.WarnContext(ctx, "Usage record marked with sync error", "id", id, "error", msg)
	return nil
}

// Stats counts records per sync status.
func (r *SQLiteRepository) Stats(ctx context.Context) (SyncStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM usage_records GROUP BY sync_status`)
	if err != nil {
		return SyncStats{}, fmt.Errorf("sync stats: %w", err)
	}
	defer rows.Close()

	var s SyncStats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return SyncStats{}, fmt.Errorf("scan sync stats: %w", err)
		}
		switch SyncStatus(status) {
		case SyncPending:
			s.Pending = n
		case SyncSynced:
			s.Synced = n
		case SyncError:
			s.Errored = n
		}
	}
	return s, rows.Err()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
