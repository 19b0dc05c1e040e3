package model

import "time"

// Kind distinguishes files from folders on the remote.
type Kind string

// Entry kinds as exposed by the Remote Client.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// RemoteEntry is a single file or folder as reported by the Remote Client.
// See data-model §3.
type RemoteEntry struct {
	ID          EntryID
	Name        string // UTF-8 display name
	Kind        Kind
	ParentID    EntryID // zero means workspace root
	Size        int64   // files only
	Hash        string  // opaque content identifier, used for download addressing
	UpdatedAt   time.Time
	WorkspaceID WorkspaceID
}

// HasParent reports whether the entry is nested under another folder
// rather than sitting at the workspace root.
func (e RemoteEntry) HasParent() bool {
	return !e.ParentID.IsZero()
}

// IsFolder reports whether the entry is a folder.
func (e RemoteEntry) IsFolder() bool {
	return e.Kind == KindFolder
}

// IsPlaceholder reports whether this entry is a reconcile-pass placeholder
// inserted into the RemoteTreeMap before the remote id is known.
func (e RemoteEntry) IsPlaceholder() bool {
	return e.ID == PlaceholderEntryID
}
