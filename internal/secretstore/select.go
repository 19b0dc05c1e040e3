package secretstore

import (
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// New returns a KeyringStore, probing it with a throwaway round-trip so
// callers get the 0600-file FileStore instead on platforms with no
// keyring backend (e.g. a bare Linux container). fallbackPath is used
// only in that case.
func New(fallbackPath string, logger *slog.Logger) Store {
	ks := NewKeyringStore(logger)

	if keyringAvailable() {
		return ks
	}

	logger.Info("OS keyring unavailable, falling back to credentials file", "path", fallbackPath)

	return NewFileStore(fallbackPath, logger)
}

// keyringAvailable probes the OS keyring with a disposable set/delete
// round-trip. ErrNotFound on Get after Set would indicate a broken
// backend, but go-keyring surfaces unavailable backends as errors from
// Set itself, so a single Set+Delete is sufficient.
func keyringAvailable() bool {
	const probeAccount = "syncagent-probe"

	if err := keyring.Set(serviceName, probeAccount, "probe"); err != nil {
		return false
	}

	_ = keyring.Delete(serviceName, probeAccount)

	return true
}

// IsNotFound reports whether err indicates "no credentials saved yet",
// across both the keyring and file-backed implementations.
func IsNotFound(err error) bool {
	return errors.Is(err, keyring.ErrNotFound) || errors.Is(err, ErrNotFound)
}
