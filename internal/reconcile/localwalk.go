package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kalervo/syncdaemon/internal/model"
)

// localEntry is a single file or folder discovered under the sync root.
type localEntry struct {
	RelPath string // normalized, forward-slash relative path
	AbsPath string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// walkLocalTree walks syncRoot and returns every file and folder, skipping
// excluded directories and noise names. Directories are included so Phase B
// can detect folders that exist locally but not in the RemoteTreeMap.
func walkLocalTree(syncRoot string, excludedDirNames []string) ([]localEntry, error) {
	var out []localEntry

	var walk func(fsRelPath, dbRelPath string) error

	walk = func(fsRelPath, dbRelPath string) error {
		fullPath := filepath.Join(syncRoot, fsRelPath)

		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return fmt.Errorf("reconcile: reading directory %q: %w", fullPath, err)
		}

		for _, entry := range entries {
			name := entry.Name()

			fsChildRel := joinRelPath(fsRelPath, name)
			dbChildRel := joinRelPath(dbRelPath, model.NormalizePath(name))

			if entry.IsDir() {
				if isExcludedDir(name, excludedDirNames) {
					continue
				}

				info, statErr := entry.Info()
				if statErr != nil {
					continue
				}

				out = append(out, localEntry{
					RelPath: dbChildRel,
					AbsPath: filepath.Join(syncRoot, fsChildRel),
					IsDir:   true,
					ModTime: info.ModTime(),
				})

				if walkErr := walk(fsChildRel, dbChildRel); walkErr != nil {
					return walkErr
				}

				continue
			}

			if isNoiseName(name) {
				continue
			}

			info, statErr := entry.Info()
			if statErr != nil {
				continue
			}

			out = append(out, localEntry{
				RelPath: dbChildRel,
				AbsPath: filepath.Join(syncRoot, fsChildRel),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}

		return nil
	}

	if err := walk("", ""); err != nil {
		return nil, err
	}

	return out, nil
}

// sortFoldersByDepth orders folder entries shallowest first, so Phase B can
// create parents before children (§4.8, "folders sorted by depth ascending").
func sortFoldersByDepth(entries []localEntry) []localEntry {
	var folders []localEntry

	for _, e := range entries {
		if e.IsDir {
			folders = append(folders, e)
		}
	}

	sort.SliceStable(folders, func(i, j int) bool {
		return pathDepth(folders[i].RelPath) < pathDepth(folders[j].RelPath)
	})

	return folders
}

func pathDepth(relPath string) int {
	if relPath == "" {
		return 0
	}

	return strings.Count(relPath, "/") + 1
}

func joinRelPath(parent, child string) string {
	if parent == "" {
		return child
	}

	return parent + "/" + child
}

var defaultNoiseSuffixes = []string{".tmp", ".temp", ".partial", ".swp", ".crdownload"}

func isNoiseName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return true
	}

	lower := strings.ToLower(name)
	if lower == "desktop.ini" || lower == "thumbs.db" {
		return true
	}

	for _, suffix := range defaultNoiseSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	return false
}

func isExcludedDir(name string, excluded []string) bool {
	for _, e := range excluded {
		if name == e {
			return true
		}
	}

	return false
}
