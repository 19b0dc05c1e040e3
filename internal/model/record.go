package model

import "time"

// LocalRecord is a row in the Metadata Store: a RemoteEntry plus the
// local filesystem path it is synced to and bookkeeping about when it
// was last reconciled. See data-model §3 and invariants I1-I3.
type LocalRecord struct {
	RemoteEntry

	LocalPath    string // absolute filesystem path; empty if never materialized locally
	LastSyncedAt time.Time
}

// Key returns the (name, parent_id, size) tuple used for invariant I2
// duplicate detection and for at-most-once upload matching.
type Key struct {
	Name     string
	ParentID EntryID
	Size     int64
}

// Key builds the secondary-index key for this record.
func (r LocalRecord) Key() Key {
	return Key{Name: r.Name, ParentID: r.ParentID, Size: r.Size}
}
