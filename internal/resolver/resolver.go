// Package resolver computes a remote parent folder identifier for a
// local relative path against a RemoteTreeMap snapshot. It is a pure
// function package: no I/O, no shared state, safe to call concurrently
// from any number of reconcile or watcher goroutines.
package resolver

import (
	"path"

	"github.com/kalervo/syncdaemon/internal/model"
)

// Kind distinguishes the three possible outcomes of resolving a path's
// parent folder.
type Kind int

const (
	// Root means the path's directory is empty — the parent is the
	// workspace root.
	Root Kind = iota
	// Resolved means the parent folder was found in the map; ID holds
	// its entry id.
	Resolved
	// Unresolved means the path's directory is non-empty but absent
	// from the map. Callers MUST defer work on this path rather than
	// falling back to root (P4/I5) — folder creation may simply not
	// have reached the map yet.
	Unresolved
)

// Resolution is the sum-type result of Resolve. Callers should switch on
// Kind rather than comparing ID against a sentinel value.
type Resolution struct {
	Kind Kind
	ID   model.EntryID
}

// IsRoot reports whether r resolved to the workspace root.
func (r Resolution) IsRoot() bool {
	return r.Kind == Root
}

// IsResolved reports whether r resolved to a known folder.
func (r Resolution) IsResolved() bool {
	return r.Kind == Resolved
}

// IsUnresolved reports whether r's parent directory is unknown.
func (r Resolution) IsUnresolved() bool {
	return r.Kind == Unresolved
}

// Resolve computes the parent folder of relPath (a workspace-relative
// path using '/' or '\' separators) against tree. The lookup is
// case-insensitive and NFC-normalizing, matching the RemoteTreeMap's own
// key scheme, and is restricted to folder entries — a file sharing a
// directory-entry's name can never satisfy a parent lookup.
func Resolve(tree *model.RemoteTreeMap, relPath string) Resolution {
	normalized := model.NormalizePath(relPath)

	dir := model.DirName(normalized)
	if dir == "" || dir == "." {
		return Resolution{Kind: Root}
	}

	entry, ok := tree.Get(dir)
	if !ok || !entry.IsFolder() {
		return Resolution{Kind: Unresolved}
	}

	return Resolution{Kind: Resolved, ID: entry.ID}
}

// RelativePath computes the workspace-relative, slash-separated path of
// name under parent's normalized relative path, for building up paths as
// a breadth-first local-tree walk descends.
func RelativePath(parentRelPath, name string) string {
	if parentRelPath == "" {
		return model.NormalizePath(name)
	}

	return model.NormalizePath(path.Join(parentRelPath, name))
}
