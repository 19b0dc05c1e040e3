// Package store is the Metadata Store (§4.1): a persistent mapping of
// remote entry identity to local filesystem path, consumed behind the
// Store interface so the reconciler and watcher never depend on the
// physical engine.
package store

import (
	"context"

	"github.com/kalervo/syncdaemon/internal/model"
)

// Store is the persistence contract for LocalRecords, defined at the
// consumer side so tests can substitute an in-memory fake instead of a
// real database.
type Store interface {
	// GetAll returns every LocalRecord for the given workspace.
	GetAll(ctx context.Context, workspace model.WorkspaceID) ([]model.LocalRecord, error)

	// GetByID looks up a record by its remote entry id.
	GetByID(ctx context.Context, workspace model.WorkspaceID, id model.EntryID) (model.LocalRecord, bool, error)

	// GetByPath looks up a record by its local filesystem path.
	GetByPath(ctx context.Context, workspace model.WorkspaceID, localPath string) (model.LocalRecord, bool, error)

	// Find looks up a record by the (name, parent_id, size) secondary
	// index, used for duplicate detection and merge-on-create.
	Find(ctx context.Context, workspace model.WorkspaceID, name string, parentID model.EntryID, size int64) (model.LocalRecord, bool, error)

	// Upsert inserts or replaces a single record transactionally.
	Upsert(ctx context.Context, record model.LocalRecord) error

	// UpsertBatch inserts or replaces many records in one transaction.
	UpsertBatch(ctx context.Context, records []model.LocalRecord) error

	// Delete removes the record with the given id, if present. Deleting
	// an absent row is not an error (§4.1: logical errors are non-fatal).
	Delete(ctx context.Context, workspace model.WorkspaceID, id model.EntryID) error

	// DeleteByPath removes the record at the given local path, if present.
	DeleteByPath(ctx context.Context, workspace model.WorkspaceID, localPath string) error

	// Close releases any underlying resources (e.g. the database handle).
	Close() error
}
