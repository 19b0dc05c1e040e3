// Package config implements TOML configuration loading, validation, and
// path resolution for the sync agent.
package config

// Config is the top-level configuration structure (data-model §6).
type Config struct {
	SyncRoot      string `toml:"sync_root"`
	WorkspaceID   int64  `toml:"workspace_id"`
	WorkspaceName string `toml:"workspace_name"`

	Transfers TransfersConfig `toml:"transfers"`
	Watch     WatchConfig     `toml:"watch"`
	Remote    RemoteConfig    `toml:"remote"`
	Logging   LoggingConfig   `toml:"logging"`
}

// TransfersConfig controls the Upload/Download Pipeline (§4.7).
type TransfersConfig struct {
	MaxConcurrentTransfers int `toml:"max_concurrent_transfers"`
	LargeFileThresholdMiB  int `toml:"large_file_threshold_mib"`
}

// WatchConfig controls the File Watcher and Echo Suppressor (§4.5, §4.6).
type WatchConfig struct {
	DebounceMS            int      `toml:"debounce_ms"`
	EchoTTLSeconds        int      `toml:"echo_ttl_seconds"`
	ExcludedDirNames      []string `toml:"excluded_dir_names"`
	PeriodicIntervalSec   int      `toml:"periodic_interval_seconds"`
	BackgroundIntervalSec int      `toml:"background_periodic_interval_seconds"`
}

// RemoteConfig controls how the Remote Client talks to the drive API.
type RemoteConfig struct {
	BaseURL        string `toml:"base_url"`
	WorkspaceParam string `toml:"workspace_param"` // "query" or "body"
}

// LoggingConfig controls the ambient slog setup.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug|info|warn|error
	Format string `toml:"format"` // "auto"|"text"|"json"
}
