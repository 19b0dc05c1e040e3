package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kalervo/syncdaemon/internal/debounce"
	"github.com/kalervo/syncdaemon/internal/echosuppressor"
	"github.com/kalervo/syncdaemon/internal/model"
)

// safetyScanInterval is how often the watcher asks its Handler to diff
// the sync root against the metadata store, catching events fsnotify
// dropped under a full OS event queue or platform-level coalescing.
const safetyScanInterval = 5 * time.Minute

// renamePairWindow bounds how long a bare Rename (old name gone) waits
// for a matching Create (new name appeared) in the same directory before
// the old path is treated as a plain deletion instead.
const renamePairWindow = 500 * time.Millisecond

// Watcher watches a sync root for filesystem changes and dispatches
// filtered, classified events to a Handler.
type Watcher struct {
	syncRoot         string
	excludedDirNames []string
	workspace        model.WorkspaceID

	debouncer  *debounce.Debouncer
	suppressor *echosuppressor.Suppressor
	pathLocks  *PathMutexMap
	handler    Handler
	logger     *slog.Logger

	watcherFactory func() (FsWatcher, error)

	mu            sync.Mutex
	pendingRename *pendingRename
}

type pendingRename struct {
	oldRelPath string
	at         time.Time
}

// New creates a Watcher rooted at syncRoot for the given workspace.
// debouncer and suppressor are shared with the rest of the sync engine
// so marks made by the pipeline are visible here.
func New(
	syncRoot string,
	workspace model.WorkspaceID,
	excludedDirNames []string,
	debouncer *debounce.Debouncer,
	suppressor *echosuppressor.Suppressor,
	handler Handler,
	logger *slog.Logger,
) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		syncRoot:         syncRoot,
		excludedDirNames: excludedDirNames,
		workspace:        workspace,
		debouncer:        debouncer,
		suppressor:       suppressor,
		pathLocks:        NewPathMutexMap(),
		handler:          handler,
		logger:           logger,
		watcherFactory:   newFsnotifyWatcher,
	}
}

// Run adds watches on every directory under the sync root, then
// processes events until ctx is canceled. It also starts the periodic
// safety scan. Run blocks until ctx is done or an unrecoverable error
// occurs.
func (w *Watcher) Run(ctx context.Context, currentWorkspace func() model.WorkspaceID) error {
	fw, err := w.watcherFactory()
	if err != nil {
		return fmt.Errorf("watcher: creating filesystem watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addWatchesRecursive(fw); err != nil {
		return fmt.Errorf("watcher: adding initial watches: %w", err)
	}

	ticker := time.NewTicker(safetyScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.handler.SafetyScan(ctx)
		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			w.handleEvent(ctx, fw, ev, currentWorkspace)
		case err, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher reported an error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) addWatchesRecursive(fw FsWatcher) error {
	return filepath.WalkDir(w.syncRoot, func(fsPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("walk error while adding watches", slog.String("path", fsPath), slog.String("error", walkErr.Error()))
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if fsPath != w.syncRoot && isExcludedDir(d.Name(), w.excludedDirNames) {
			return filepath.SkipDir
		}

		if err := fw.Add(fsPath); err != nil {
			w.logger.Warn("failed to add watch", slog.String("path", fsPath), slog.String("error", err.Error()))
		}

		return nil
	})
}

// handleEvent runs the filter chain in order (§4.6) and dispatches to
// the handler on success.
func (w *Watcher) handleEvent(ctx context.Context, fw FsWatcher, ev fsnotify.Event, currentWorkspace func() model.WorkspaceID) {
	relPath, err := filepath.Rel(w.syncRoot, ev.Name)
	if err != nil {
		return
	}

	relPath = model.NormalizePath(relPath)
	name := filepath.Base(ev.Name)

	// Filter 1: noise names.
	if isNoiseName(name) {
		return
	}

	// Filter 2: excluded directories anywhere in the path.
	if pathCrossesExcludedDir(relPath, w.excludedDirNames) {
		return
	}

	// Filter 5: workspace drift. The watcher must be restarted by its
	// owner for a new workspace rather than silently keep running.
	if currentWorkspace != nil && currentWorkspace() != w.workspace {
		w.logger.Debug("dropping event: workspace drifted since watcher start", slog.String("path", relPath))
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		w.handleCreate(ctx, fw, ev.Name, relPath)
	case ev.Has(fsnotify.Write):
		w.handleWrite(ctx, relPath)
	case ev.Has(fsnotify.Remove):
		w.handleRemove(ctx, relPath)
	case ev.Has(fsnotify.Rename):
		w.handleRename(ctx, relPath)
	}
}

func (w *Watcher) handleCreate(ctx context.Context, fw FsWatcher, absPath, relPath string) {
	info, err := os.Stat(absPath)
	if err != nil {
		// The path may already be gone (create-then-immediate-delete);
		// nothing to classify.
		return
	}

	if matched := w.consumePendingRename(relPath); matched != "" {
		if info.IsDir() {
			// Folder renames are refused (§4.6): folders anchor the
			// path->id mapping, so a rename is reported but not
			// propagated. The handler is responsible for reverting the
			// name on disk.
			w.dispatch(relPath, func() {
				w.handler.RenamedFolderRefused(ctx, relPath)
			})

			return
		}

		w.dispatch(relPath, func() {
			w.handler.RenamedFile(ctx, matched, relPath)
		})

		return
	}

	if info.IsDir() {
		if err := fw.Add(absPath); err != nil {
			w.logger.Warn("failed to add watch for new directory", slog.String("path", absPath), slog.String("error", err.Error()))
		}

		w.dispatch(relPath, func() {
			w.handler.CreatedFolder(ctx, relPath)
		})

		return
	}

	// Filters 3-4 (debounce, echo) apply only to content-bearing events,
	// not directory creation, which the Reconciler's folder-creation
	// path is expected to dedupe idempotently.
	if w.suppressor.IsRecent(relPath) {
		return
	}

	if !w.debouncer.ShouldProcess(relPath) {
		return
	}

	w.dispatch(relPath, func() {
		w.handler.CreatedFile(ctx, relPath)
	})
}

func (w *Watcher) handleWrite(ctx context.Context, relPath string) {
	if w.suppressor.IsRecent(relPath) {
		return
	}

	if !w.debouncer.ShouldProcess(relPath) {
		return
	}

	w.dispatch(relPath, func() {
		w.handler.Modified(ctx, relPath)
	})
}

func (w *Watcher) handleRemove(ctx context.Context, relPath string) {
	if w.suppressor.IsRecent(relPath) {
		return
	}

	w.dispatch(relPath, func() {
		w.handler.Deleted(ctx, relPath)
	})
}

// handleRename records relPath (the vanished old name) as a pending
// rename, waiting up to renamePairWindow for a paired Create at the new
// name. If no Create arrives in time, it is treated as a plain deletion.
func (w *Watcher) handleRename(ctx context.Context, relPath string) {
	w.mu.Lock()
	w.pendingRename = &pendingRename{oldRelPath: relPath, at: time.Now()}
	w.mu.Unlock()

	time.AfterFunc(renamePairWindow, func() {
		w.mu.Lock()
		stale := w.pendingRename != nil && w.pendingRename.oldRelPath == relPath
		if stale {
			w.pendingRename = nil
		}
		w.mu.Unlock()

		if stale {
			w.handleRemove(ctx, relPath)
		}
	})
}

// consumePendingRename returns the old relative path if newRelPath
// arrived within renamePairWindow of a Rename event, clearing the
// pending state either way it is consulted.
func (w *Watcher) consumePendingRename(newRelPath string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingRename == nil {
		return ""
	}

	if time.Since(w.pendingRename.at) > renamePairWindow {
		w.pendingRename = nil
		return ""
	}

	if filepath.Dir(w.pendingRename.oldRelPath) != filepath.Dir(newRelPath) {
		return ""
	}

	old := w.pendingRename.oldRelPath
	w.pendingRename = nil

	return old
}

// dispatch applies the per-path in-progress guard (filter 6) around fn.
func (w *Watcher) dispatch(relPath string, fn func()) {
	if !w.pathLocks.TryLock(relPath) {
		w.logger.Debug("dropping event: handler already in progress for path", slog.String("path", relPath))
		return
	}
	defer w.pathLocks.Unlock(relPath)

	fn()
}
