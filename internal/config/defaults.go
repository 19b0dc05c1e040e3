package config

// Default values for configuration options (§6 "Configuration").
const (
	defaultMaxConcurrentTransfers = 50
	defaultLargeFileThresholdMiB  = 3
	defaultDebounceMS             = 1000
	defaultEchoTTLSeconds         = 7200
	defaultPeriodicIntervalSec    = 300
	defaultBackgroundIntervalSec  = 120
	defaultWorkspaceParam         = "query"
	defaultLogLevel               = "info"
	defaultLogFormat              = "auto"
)

// defaultExcludedDirNames mirrors the File Watcher's §4.6 filter list.
func defaultExcludedDirNames() []string {
	return []string{
		".git", "node_modules", ".vs", ".idea", "bin", "obj", "__pycache__",
	}
}

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (so unset fields keep their
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Transfers: TransfersConfig{
			MaxConcurrentTransfers: defaultMaxConcurrentTransfers,
			LargeFileThresholdMiB:  defaultLargeFileThresholdMiB,
		},
		Watch: WatchConfig{
			DebounceMS:            defaultDebounceMS,
			EchoTTLSeconds:        defaultEchoTTLSeconds,
			ExcludedDirNames:      defaultExcludedDirNames(),
			PeriodicIntervalSec:   defaultPeriodicIntervalSec,
			BackgroundIntervalSec: defaultBackgroundIntervalSec,
		},
		Remote: RemoteConfig{
			WorkspaceParam: defaultWorkspaceParam,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
