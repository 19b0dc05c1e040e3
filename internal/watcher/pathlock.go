package watcher

import "sync"

// PathMutexMap hands out a per-path *sync.Mutex, creating it on first
// use and removing it once the last holder releases it, so the map
// never grows unbounded over a long-running watch. This is the "per-path
// mutex map" the in-progress guard filter is built on (§4.6, §9).
type PathMutexMap struct {
	mu    sync.Mutex
	locks map[string]*refcountedMutex
}

type refcountedMutex struct {
	mu       sync.Mutex
	refcount int
}

// NewPathMutexMap creates an empty PathMutexMap.
func NewPathMutexMap() *PathMutexMap {
	return &PathMutexMap{locks: make(map[string]*refcountedMutex)}
}

// TryLock attempts to acquire path's lock without blocking. It reports
// false if another handler already holds it. A true return must be
// paired with a later call to Unlock(path).
func (m *PathMutexMap) TryLock(path string) bool {
	entry := m.acquire(path)

	if !entry.mu.TryLock() {
		m.release(path)
		return false
	}

	return true
}

// Unlock releases path's lock acquired via a successful TryLock.
func (m *PathMutexMap) Unlock(path string) {
	m.mu.Lock()
	entry, ok := m.locks[path]
	m.mu.Unlock()

	if !ok {
		return
	}

	entry.mu.Unlock()
	m.release(path)
}

func (m *PathMutexMap) acquire(path string) *refcountedMutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[path]
	if !ok {
		entry = &refcountedMutex{}
		m.locks[path] = entry
	}

	entry.refcount++

	return entry
}

func (m *PathMutexMap) release(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[path]
	if !ok {
		return
	}

	entry.refcount--
	if entry.refcount <= 0 {
		delete(m.locks, path)
	}
}
