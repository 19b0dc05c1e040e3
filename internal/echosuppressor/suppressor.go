// Package echosuppressor tracks paths the agent itself just wrote to
// disk (via download) or just uploaded, so the File Watcher can veto the
// filesystem event the write generates and avoid re-uploading a file the
// agent downloaded moments earlier.
package echosuppressor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kalervo/syncdaemon/internal/model"
)

// DefaultTTL is the default window an entry is considered "recent",
// sized so a reconcile pass plus filesystem quiescence cannot outrun it.
const DefaultTTL = 2 * time.Hour

// sweepInterval is how often expired entries are evicted from the map.
// Running the sweep far more often than TTL keeps memory bounded without
// meaningfully affecting is_recent's accuracy.
const sweepInterval = 5 * time.Minute

type entry struct {
	markedAt time.Time
}

// Suppressor is the time-windowed set of recently-touched paths (by
// original and by canonicalized form) described in §4.4.
type Suppressor struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	logger  *slog.Logger
}

// New creates a Suppressor with the given TTL. ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration, logger *slog.Logger) *Suppressor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Suppressor{
		ttl:     ttl,
		entries: make(map[string]entry),
		logger:  logger,
	}
}

// Mark records path (and its canonicalized form) as recently touched by
// the agent, starting a fresh TTL window from now.
func (s *Suppressor) Mark(path string) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[path] = entry{markedAt: now}
	s.entries[model.NormalizePath(path)] = entry{markedAt: now}
}

// IsRecent reports whether path (or its canonicalized form) was marked
// within the TTL window.
func (s *Suppressor) IsRecent(path string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[path]; ok && now.Sub(e.markedAt) < s.ttl {
		return true
	}

	if e, ok := s.entries[model.NormalizePath(path)]; ok && now.Sub(e.markedAt) < s.ttl {
		return true
	}

	return false
}

// Len reports the current number of tracked entries, for tests and
// diagnostics.
func (s *Suppressor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Run evicts expired entries every sweepInterval until ctx is canceled.
// The Coordinator runs it as a long-lived goroutine alongside its
// periodic reconcile loop.
func (s *Suppressor) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Suppressor) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.entries)

	for path, e := range s.entries {
		if now.Sub(e.markedAt) >= s.ttl {
			delete(s.entries, path)
		}
	}

	if evicted := before - len(s.entries); evicted > 0 {
		s.logger.Debug("echo suppressor sweep evicted expired entries",
			slog.Int("evicted", evicted), slog.Int("remaining", len(s.entries)))
	}
}
