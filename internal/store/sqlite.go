package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO), matching the rest of the stack's
	// portability goal.
	_ "modernc.org/sqlite"

	"github.com/kalervo/syncdaemon/internal/model"
)

const (
	sqlGetAll = `SELECT workspace_id, entry_id, name, kind, parent_id, size, hash,
		updated_at, local_path, last_synced_at
		FROM local_records WHERE workspace_id = ?`

	sqlGetByID = sqlGetAll + ` AND entry_id = ?`

	sqlGetByPath = `SELECT workspace_id, entry_id, name, kind, parent_id, size, hash,
		updated_at, local_path, last_synced_at
		FROM local_records WHERE workspace_id = ? AND local_path = ?`

	sqlFind = `SELECT workspace_id, entry_id, name, kind, parent_id, size, hash,
		updated_at, local_path, last_synced_at
		FROM local_records
		WHERE workspace_id = ? AND name = ? AND parent_id = ? AND size = ?
		LIMIT 1`

	sqlUpsert = `INSERT INTO local_records
		(workspace_id, entry_id, name, kind, parent_id, size, hash,
		 updated_at, local_path, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, entry_id) DO UPDATE SET
		 name = excluded.name,
		 kind = excluded.kind,
		 parent_id = excluded.parent_id,
		 size = excluded.size,
		 hash = excluded.hash,
		 updated_at = excluded.updated_at,
		 local_path = excluded.local_path,
		 last_synced_at = excluded.last_synced_at`

	sqlDelete       = `DELETE FROM local_records WHERE workspace_id = ? AND entry_id = ?`
	sqlDeleteByPath = `DELETE FROM local_records WHERE workspace_id = ? AND local_path = ?`
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the Store implementation backed by modernc.org/sqlite in
// WAL mode, with goose-managed migrations applied at open time.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if absent) the database at dsn, applies
// pending migrations, and returns a ready-to-use store. Pass ":memory:"
// for an ephemeral test database.
func NewSQLiteStore(dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connDSN := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dsn)
	if dsn == ":memory:" {
		// A file-backed DSN of ":memory:" would create a real file named
		// that; keep the SQLite shared in-memory mode instead.
		connDSN = "file::memory:?cache=shared&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", connDSN)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dsn, err)
	}

	// Sole-writer pattern: SQLite has one writer at a time regardless; a
	// single pooled connection avoids SQLITE_BUSY under our own load.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAll(ctx context.Context, workspace model.WorkspaceID) ([]model.LocalRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlGetAll, int64(workspace))
	if err != nil {
		return nil, fmt.Errorf("store: get all: %w", err)
	}
	defer rows.Close()

	var out []model.LocalRecord

	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating get all: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, workspace model.WorkspaceID, id model.EntryID) (model.LocalRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, sqlGetByID, int64(workspace), int64(id))

	rec, err := scanRecordRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LocalRecord{}, false, nil
	}

	if err != nil {
		return model.LocalRecord{}, false, fmt.Errorf("store: get by id %s: %w", id, err)
	}

	return rec, true, nil
}

func (s *SQLiteStore) GetByPath(ctx context.Context, workspace model.WorkspaceID, localPath string) (model.LocalRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, sqlGetByPath, int64(workspace), localPath)

	rec, err := scanRecordRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LocalRecord{}, false, nil
	}

	if err != nil {
		return model.LocalRecord{}, false, fmt.Errorf("store: get by path %s: %w", localPath, err)
	}

	return rec, true, nil
}

func (s *SQLiteStore) Find(ctx context.Context, workspace model.WorkspaceID, name string, parentID model.EntryID, size int64) (model.LocalRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, sqlFind, int64(workspace), name, int64(parentID), size)

	rec, err := scanRecordRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LocalRecord{}, false, nil
	}

	if err != nil {
		return model.LocalRecord{}, false, fmt.Errorf("store: find %s: %w", name, err)
	}

	return rec, true, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, record model.LocalRecord) error {
	if _, err := s.db.ExecContext(ctx, sqlUpsert, upsertArgs(record)...); err != nil {
		return fmt.Errorf("store: upsert %s: %w", record.Name, err)
	}

	return nil
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []model.LocalRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin batch upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlUpsert)
	if err != nil {
		return fmt.Errorf("store: prepare batch upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, upsertArgs(rec)...); err != nil {
			return fmt.Errorf("store: batch upsert %s: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch upsert: %w", err)
	}

	s.logger.Debug("batch upsert committed", slog.Int("count", len(records)))

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, workspace model.WorkspaceID, id model.EntryID) error {
	if _, err := s.db.ExecContext(ctx, sqlDelete, int64(workspace), int64(id)); err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}

	return nil
}

func (s *SQLiteStore) DeleteByPath(ctx context.Context, workspace model.WorkspaceID, localPath string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteByPath, int64(workspace), localPath); err != nil {
		return fmt.Errorf("store: delete by path %s: %w", localPath, err)
	}

	return nil
}

func upsertArgs(r model.LocalRecord) []any {
	return []any{
		int64(r.WorkspaceID), int64(r.ID), r.Name, string(r.Kind), int64(r.ParentID), r.Size, r.Hash,
		r.UpdatedAt.Unix(), r.LocalPath, r.LastSyncedAt.Unix(),
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanRecord/scanRecordRow
// share one scan body.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(rows *sql.Rows) (model.LocalRecord, error) {
	return scanRecordRow(rows)
}

func scanRecordRow(row rowScanner) (model.LocalRecord, error) {
	var (
		workspaceID  int64
		entryID      int64
		name         string
		kind         string
		parentID     int64
		size         int64
		hash         string
		updatedAt    int64
		localPath    string
		lastSyncedAt int64
	)

	err := row.Scan(&workspaceID, &entryID, &name, &kind, &parentID, &size, &hash,
		&updatedAt, &localPath, &lastSyncedAt)
	if err != nil {
		return model.LocalRecord{}, err
	}

	return model.LocalRecord{
		RemoteEntry: model.RemoteEntry{
			ID:          model.EntryID(entryID),
			Name:        name,
			Kind:        model.Kind(kind),
			ParentID:    model.EntryID(parentID),
			Size:        size,
			Hash:        hash,
			UpdatedAt:   time.Unix(updatedAt, 0).UTC(),
			WorkspaceID: model.WorkspaceID(workspaceID),
		},
		LocalPath:    localPath,
		LastSyncedAt: time.Unix(lastSyncedAt, 0).UTC(),
	}, nil
}
