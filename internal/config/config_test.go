package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalervo/syncdaemon/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SyncRoot = "/tmp/sync"
	cfg.WorkspaceID = 1

	assert.NoError(t, config.Validate(cfg))
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Transfers.MaxConcurrentTransfers)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
sync_root = "/home/me/sync"
workspace_id = 42

[transfers]
max_concurrent_transfers = 10

[watch]
debounce_ms = 2000
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/home/me/sync", cfg.SyncRoot)
	assert.Equal(t, int64(42), cfg.WorkspaceID)
	assert.Equal(t, 10, cfg.Transfers.MaxConcurrentTransfers)
	assert.Equal(t, 2000, cfg.Watch.DebounceMS)
	// Untouched defaults survive the overlay.
	assert.Equal(t, 7200, cfg.Watch.EchoTTLSeconds)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transfers.MaxConcurrentTransfers = 0
	cfg.Logging.Level = "verbose"

	err := config.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_transfers")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestWorkspaceDirName(t *testing.T) {
	assert.Equal(t, "7_Docs", config.WorkspaceDirName(7, "Docs"))
	assert.Equal(t, "7_My _Team", config.WorkspaceDirName(7, `My /Team`))
	assert.Equal(t, "7_workspace", config.WorkspaceDirName(7, ""))
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := config.DefaultConfig()
	cfg.SyncRoot = "/home/me/sync"
	cfg.WorkspaceID = 9
	cfg.WorkspaceName = "Team Drive"

	require.NoError(t, config.Save(path, cfg))

	loaded, err := config.Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, cfg.SyncRoot, loaded.SyncRoot)
	assert.Equal(t, cfg.WorkspaceID, loaded.WorkspaceID)
	assert.Equal(t, cfg.WorkspaceName, loaded.WorkspaceName)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := config.DefaultConfig()
	cfg.Transfers.MaxConcurrentTransfers = 0

	err := config.Save(path, cfg)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
