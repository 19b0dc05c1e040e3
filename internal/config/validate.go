package config

import (
	"errors"
	"fmt"
)

// Validation range constants.
const (
	minTransfers      = 1
	maxTransfers      = 500
	minLargeThreshold = 1
	minDebounceMS     = 1
	minEchoTTLSeconds = 1
	minPeriodicSec    = 1
)

// Validate checks all configuration values and returns all errors found. It
// accumulates every error rather than stopping at the first, so users see a
// complete report in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Transfers.MaxConcurrentTransfers < minTransfers || cfg.Transfers.MaxConcurrentTransfers > maxTransfers {
		errs = append(errs, fmt.Errorf("max_concurrent_transfers: must be between %d and %d, got %d",
			minTransfers, maxTransfers, cfg.Transfers.MaxConcurrentTransfers))
	}

	if cfg.Transfers.LargeFileThresholdMiB < minLargeThreshold {
		errs = append(errs, fmt.Errorf("large_file_threshold_mib: must be >= %d, got %d",
			minLargeThreshold, cfg.Transfers.LargeFileThresholdMiB))
	}

	if cfg.Watch.DebounceMS < minDebounceMS {
		errs = append(errs, fmt.Errorf("debounce_ms: must be >= %d, got %d", minDebounceMS, cfg.Watch.DebounceMS))
	}

	if cfg.Watch.EchoTTLSeconds < minEchoTTLSeconds {
		errs = append(errs, fmt.Errorf("echo_ttl_seconds: must be >= %d, got %d",
			minEchoTTLSeconds, cfg.Watch.EchoTTLSeconds))
	}

	if cfg.Watch.PeriodicIntervalSec < minPeriodicSec {
		errs = append(errs, fmt.Errorf("periodic_interval_seconds: must be >= %d, got %d",
			minPeriodicSec, cfg.Watch.PeriodicIntervalSec))
	}

	if cfg.Remote.WorkspaceParam != "" && cfg.Remote.WorkspaceParam != "query" && cfg.Remote.WorkspaceParam != "body" {
		errs = append(errs, fmt.Errorf("remote.workspace_param: must be \"query\" or \"body\", got %q",
			cfg.Remote.WorkspaceParam))
	}

	errs = append(errs, validateLogLevel(cfg.Logging.Level)...)
	errs = append(errs, validateLogFormat(cfg.Logging.Format)...)

	return errors.Join(errs...)
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
