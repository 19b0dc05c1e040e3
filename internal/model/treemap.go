package model

import (
	"path"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath converts a relative path to the canonical form used as a
// RemoteTreeMap key: forward-slash separated, NFC-normalized, with
// comparisons performed case-insensitively by the caller (Go does not
// intern a case-folded form here so the original casing survives for
// display — see CaseFold).
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")

	return norm.NFC.String(p)
}

// CaseFold returns the case-insensitive, NFC-normalized comparison form
// of a path, used as the actual map key so "Docs/A.txt" and "docs/a.txt"
// collide the way the remote does, and so do composed and decomposed
// spellings of the same name.
func CaseFold(p string) string {
	return strings.ToLower(norm.NFC.String(p))
}

// DirName returns the normalized parent directory of a normalized path,
// or "" for a top-level entry.
func DirName(normalized string) string {
	dir := path.Dir(normalized)
	if dir == "." || dir == "/" {
		return ""
	}

	return dir
}

// RemoteTreeMap is the transient path -> RemoteEntry snapshot built at the
// start of every reconcile pass (data-model §3). Keys are the case-folded,
// NFC-normalized relative path. Mutation is guarded by an internal lock so
// the pass can be the single owner while still allowing the snapshot fan-out
// goroutines to insert concurrently (§5, "the pass is single-owner").
type RemoteTreeMap struct {
	mu      sync.RWMutex
	entries map[string]RemoteEntry
	// display preserves the original (non-folded) normalized path for
	// each case-folded key, so callers can report user-facing paths.
	display map[string]string
}

// NewRemoteTreeMap creates an empty tree map.
func NewRemoteTreeMap() *RemoteTreeMap {
	return &RemoteTreeMap{
		entries: make(map[string]RemoteEntry),
		display: make(map[string]string),
	}
}

// Put inserts or replaces the entry at the given normalized relative path.
func (m *RemoteTreeMap) Put(normalizedPath string, entry RemoteEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := CaseFold(normalizedPath)
	m.entries[key] = entry
	m.display[key] = normalizedPath
}

// Get looks up the entry at the given path (case-insensitive).
func (m *RemoteTreeMap) Get(normalizedPath string) (RemoteEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[CaseFold(normalizedPath)]

	return e, ok
}

// Delete removes the entry at the given path, if present.
func (m *RemoteTreeMap) Delete(normalizedPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := CaseFold(normalizedPath)
	delete(m.entries, key)
	delete(m.display, key)
}

// Len returns the number of entries currently in the map.
func (m *RemoteTreeMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Snapshot returns a copy of all (displayPath, entry) pairs. Intended for
// the reconcile walk phases, which need a stable view while continuing to
// mutate the live map for descendant resolution.
func (m *RemoteTreeMap) Snapshot() map[string]RemoteEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]RemoteEntry, len(m.entries))
	for key, e := range m.entries {
		out[m.display[key]] = e
	}

	return out
}
