// Package model defines the data types shared across the sync engine:
// remote entries, local records, the transient remote tree snapshot, and
// the small leaf identity types that keep workspace and entry ids from
// being confused with one another at compile time.
package model

import (
	"fmt"
	"strconv"
)

// WorkspaceID identifies a tenant-like container on the remote drive.
// The zero value represents "no workspace selected".
type WorkspaceID int64

// String renders the workspace id for logging and path construction.
func (w WorkspaceID) String() string {
	return strconv.FormatInt(int64(w), 10)
}

// IsZero reports whether this is the unset workspace id.
func (w WorkspaceID) IsZero() bool {
	return w == 0
}

// ParseWorkspaceID parses a decimal string into a WorkspaceID.
func ParseWorkspaceID(s string) (WorkspaceID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("model: invalid workspace id %q: %w", s, err)
	}

	return WorkspaceID(v), nil
}

// EntryID identifies a single RemoteEntry. The zero value represents an
// absent parent (i.e. the entry is at the workspace root).
type EntryID int64

// String renders the entry id for logging.
func (id EntryID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsZero reports whether this id represents "no entry" / workspace root.
func (id EntryID) IsZero() bool {
	return id == 0
}

// PlaceholderEntryID marks a RemoteTreeMap slot reserved by an in-flight
// upload or folder creation before the remote has assigned a real id.
const PlaceholderEntryID EntryID = -1
