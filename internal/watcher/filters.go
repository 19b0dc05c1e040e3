package watcher

import "strings"

// defaultExcludedDirNames lists directory names whose subtree is never
// watched or synced (version control, build output, package caches).
// Configured via WatchConfig.ExcludedDirNames; this is the built-in
// default set.
var defaultExcludedDirNames = []string{
	".git", "node_modules", ".vs", ".idea", "bin", "obj", "__pycache__",
}

// noiseSuffixes are file extensions that are never synced: partial
// downloads, editor swap files, and other artifacts that are unsafe or
// meaningless to mirror.
var noiseSuffixes = []string{".tmp", ".temp", ".partial", ".swp", ".crdownload"}

// isNoiseName reports whether name is a system or editor artifact that
// must be dropped regardless of directory (filter 1, §4.6).
func isNoiseName(name string) bool {
	if name == "" {
		return true
	}

	if strings.HasPrefix(name, ".") {
		return true
	}

	if strings.HasPrefix(name, "~$") {
		return true
	}

	lower := strings.ToLower(name)
	if lower == "desktop.ini" || lower == "thumbs.db" {
		return true
	}

	for _, suffix := range noiseSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	return false
}

// isExcludedDir reports whether name matches one of the excluded
// directory names (filter 2, §4.6) — VCS directories, build output, and
// package caches whose subtrees are never synced.
func isExcludedDir(name string, excluded []string) bool {
	if len(excluded) == 0 {
		excluded = defaultExcludedDirNames
	}

	for _, e := range excluded {
		if name == e {
			return true
		}
	}

	return false
}

// pathCrossesExcludedDir reports whether any path component of relPath
// (slash-separated) matches an excluded directory name.
func pathCrossesExcludedDir(relPath string, excluded []string) bool {
	for _, part := range strings.Split(relPath, "/") {
		if isExcludedDir(part, excluded) {
			return true
		}
	}

	return false
}
