package secretstore_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalervo/syncdaemon/internal/secretstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := secretstore.NewFileStore(path, discardLogger())

	_, err := store.Load()
	assert.ErrorIs(t, err, secretstore.ErrNotFound)

	creds := &secretstore.Credentials{
		Cookies:             map[string]string{"session": "abc"},
		CSRFToken:           "xyz",
		LastActiveWorkspace: 7,
		SyncRootPath:        "/home/me/sync",
	}

	require.NoError(t, store.Save(creds))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	require.NoError(t, store.Clear())
	_, err = store.Load()
	assert.ErrorIs(t, err, secretstore.ErrNotFound)
}

func TestFileStoreClearMissingIsNoop(t *testing.T) {
	store := secretstore.NewFileStore(filepath.Join(t.TempDir(), "missing.json"), discardLogger())
	assert.NoError(t, store.Clear())
}
