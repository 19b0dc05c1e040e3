package store_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", discardLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func sampleRecord(workspace model.WorkspaceID, id model.EntryID, name, path string, size int64) model.LocalRecord {
	return model.LocalRecord{
		RemoteEntry: model.RemoteEntry{
			ID:          id,
			Name:        name,
			Kind:        model.KindFile,
			Size:        size,
			UpdatedAt:   time.Now().Truncate(time.Second),
			WorkspaceID: workspace,
		},
		LocalPath:    path,
		LastSyncedAt: time.Now().Truncate(time.Second),
	}
}

func TestUpsertThenGetByID(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord(1, 10, "a.txt", "/sync/a.txt", 5)

	require.NoError(t, s.Upsert(t.Context(), rec))

	got, ok, err := s.GetByID(t.Context(), 1, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a.txt", got.Name)
	assert.Equal(t, int64(5), got.Size)
}

func TestGetByIDMissingReturnsFalse(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetByID(t.Context(), 1, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetByPath(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord(1, 10, "a.txt", "/sync/a.txt", 5)
	require.NoError(t, s.Upsert(t.Context(), rec))

	got, ok, err := s.GetByPath(t.Context(), 1, "/sync/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.EntryID(10), got.ID)
}

func TestFindByNameParentSize(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord(1, 10, "a.txt", "/sync/a.txt", 5)
	require.NoError(t, s.Upsert(t.Context(), rec))

	got, ok, err := s.Find(t.Context(), 1, "a.txt", 0, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.EntryID(10), got.ID)

	_, ok, err = s.Find(t.Context(), 1, "a.txt", 0, 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertReplacesExistingRow(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord(1, 10, "a.txt", "/sync/a.txt", 5)
	require.NoError(t, s.Upsert(t.Context(), rec))

	rec.Size = 99
	require.NoError(t, s.Upsert(t.Context(), rec))

	got, ok, err := s.GetByID(t.Context(), 1, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), got.Size)

	all, err := s.GetAll(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertBatchInsertsAllRecords(t *testing.T) {
	s := newTestStore(t)
	recs := []model.LocalRecord{
		sampleRecord(1, 1, "a.txt", "/sync/a.txt", 1),
		sampleRecord(1, 2, "b.txt", "/sync/b.txt", 2),
		sampleRecord(1, 3, "c.txt", "/sync/c.txt", 3),
	}

	require.NoError(t, s.UpsertBatch(t.Context(), recs))

	all, err := s.GetAll(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteRemovesRow(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord(1, 10, "a.txt", "/sync/a.txt", 5)
	require.NoError(t, s.Upsert(t.Context(), rec))

	require.NoError(t, s.Delete(t.Context(), 1, 10))

	_, ok, err := s.GetByID(t.Context(), 1, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAbsentRowIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete(t.Context(), 1, 999))
}

func TestDeleteByPathRemovesRow(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord(1, 10, "a.txt", "/sync/a.txt", 5)
	require.NoError(t, s.Upsert(t.Context(), rec))

	require.NoError(t, s.DeleteByPath(t.Context(), 1, "/sync/a.txt"))

	_, ok, err := s.GetByPath(t.Context(), 1, "/sync/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordsAreScopedByWorkspace(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(t.Context(), sampleRecord(1, 10, "a.txt", "/sync/a.txt", 5)))
	require.NoError(t, s.Upsert(t.Context(), sampleRecord(2, 10, "a.txt", "/sync2/a.txt", 5)))

	one, err := s.GetAll(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	two, err := s.GetAll(t.Context(), 2)
	require.NoError(t, err)
	assert.Len(t, two, 1)
}
