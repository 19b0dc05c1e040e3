package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kalervo/syncdaemon/internal/echosuppressor"
	"github.com/kalervo/syncdaemon/internal/events"
	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/pipeline"
	"github.com/kalervo/syncdaemon/internal/store"
	"github.com/kalervo/syncdaemon/internal/watcher"
)

// modifiedTolerance is the §4.6 "Modified" band: a write whose resulting
// size and mtime are both within this of the Metadata Store record is
// treated as already synced (e.g. a touch with no content change).
const modifiedTolerance = 5 * time.Second

// handlerRemoteAPI is the subset of remoteapi.Client the File Watcher's
// handler depends on. The Coordinator's RemoteAPI satisfies it.
type handlerRemoteAPI interface {
	CreateFolder(ctx context.Context, workspace model.WorkspaceID, name string, parentID model.EntryID) (model.RemoteEntry, error)
	Rename(ctx context.Context, workspace model.WorkspaceID, id model.EntryID, newName string) (bool, error)
	Delete(ctx context.Context, workspace model.WorkspaceID, id model.EntryID) (bool, error)
}

// Transferer is the subset of pipeline.Pipeline the handler depends on.
type Transferer interface {
	Upload(ctx context.Context, task pipeline.UploadTask) (model.RemoteEntry, error)
}

// Compile-time check that the production pipeline satisfies Transferer.
var _ Transferer = (*pipeline.Pipeline)(nil)

// fileHandler implements watcher.Handler, translating single-path
// filesystem events into Metadata Store and Remote Client operations
// (§4.6). One fileHandler is scoped to a single workspace/syncRoot pair;
// the Coordinator rebuilds it on every workspace switch.
type fileHandler struct {
	workspace model.WorkspaceID
	syncRoot  string

	store      store.Store
	remote     handlerRemoteAPI
	transfer   Transferer
	suppressor *echosuppressor.Suppressor
	bus        *events.Bus
	logger     *slog.Logger
}

var _ watcher.Handler = (*fileHandler)(nil)

func newFileHandler(workspace model.WorkspaceID, syncRoot string, st store.Store, remote handlerRemoteAPI, transfer Transferer, suppressor *echosuppressor.Suppressor, bus *events.Bus, logger *slog.Logger) *fileHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &fileHandler{
		workspace: workspace, syncRoot: syncRoot,
		store: st, remote: remote, transfer: transfer, suppressor: suppressor, bus: bus, logger: logger,
	}
}

func (h *fileHandler) absPath(relPath string) string {
	return filepath.Join(h.syncRoot, filepath.FromSlash(relPath))
}

func (h *fileHandler) publishError(stage events.Stage, relPath, message string) {
	h.logger.Warn(message, slog.String("path", relPath))
	h.bus.Publish(events.Event{At: time.Now(), Error: &events.ErrorEvent{Stage: stage, CurrentPath: relPath, Message: message}})
}

func (h *fileHandler) publishChange(kind events.ChangeKind, relPath, oldRelPath string) {
	h.bus.Publish(events.Event{At: time.Now(), Change: &events.ChangeEvent{Kind: kind, Path: relPath, OldPath: oldRelPath}})
}

// CreatedFile implements watcher.Handler (§4.6 "Created (file)").
func (h *fileHandler) CreatedFile(ctx context.Context, relPath string) {
	absPath := h.absPath(relPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return
	}

	if _, ok, err := h.store.GetByPath(ctx, h.workspace, absPath); err == nil && ok {
		return
	}

	parentID, resolved := resolveParentViaStore(ctx, h.store, h.workspace, h.syncRoot, relPath)
	if !resolved {
		h.logger.Debug("deferring created-file, parent unresolved", slog.String("path", relPath))
		return
	}

	name := filepath.Base(absPath)

	if rec, ok, err := h.store.Find(ctx, h.workspace, name, parentID, info.Size()); err == nil && ok {
		rec.LocalPath = absPath
		rec.LastSyncedAt = time.Now()

		if err := h.store.Upsert(ctx, rec); err != nil {
			h.logger.Error("store upsert (merge) failed", slog.String("path", relPath), slog.Any("error", err))
		}

		return
	}

	entry, err := h.transfer.Upload(ctx, pipeline.UploadTask{Workspace: h.workspace, LocalPath: absPath, ParentID: parentID})
	if err != nil {
		h.publishError(events.StageUpload, relPath, "upload failed: "+err.Error())
		return
	}

	if err := h.store.Upsert(ctx, model.LocalRecord{RemoteEntry: entry, LocalPath: absPath, LastSyncedAt: time.Now()}); err != nil {
		h.logger.Error("store upsert after upload failed", slog.String("path", relPath), slog.Any("error", err))
	}

	h.suppressor.Mark(relPath)
	h.publishChange(events.ChangeAdded, relPath, "")
}

// CreatedFolder implements watcher.Handler (§4.6 "Created (folder)").
func (h *fileHandler) CreatedFolder(ctx context.Context, relPath string) {
	parentID, resolved := resolveParentWithRetry(ctx, h.store, h.workspace, h.syncRoot, relPath, 0)
	if !resolved {
		h.logger.Debug("deferring created-folder, parent unresolved", slog.String("path", relPath))
		return
	}

	absPath := h.absPath(relPath)
	name := filepath.Base(absPath)

	entry, err := h.remote.CreateFolder(ctx, h.workspace, name, parentID)
	if err != nil {
		h.publishError(events.StageUpload, relPath, "create folder failed: "+err.Error())
		return
	}

	if err := h.store.Upsert(ctx, model.LocalRecord{RemoteEntry: entry, LocalPath: absPath, LastSyncedAt: time.Now()}); err != nil {
		h.logger.Error("store upsert after create_folder failed", slog.String("path", relPath), slog.Any("error", err))
	}

	h.publishChange(events.ChangeAdded, relPath, "")
}

// Modified implements watcher.Handler (§4.6 "Modified").
func (h *fileHandler) Modified(ctx context.Context, relPath string) {
	absPath := h.absPath(relPath)

	rec, ok, err := h.store.GetByPath(ctx, h.workspace, absPath)
	if err != nil {
		h.logger.Error("store lookup failed", slog.String("path", relPath), slog.Any("error", err))
		return
	}

	if !ok {
		h.CreatedFile(ctx, relPath)
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return
	}

	sizeSame := info.Size() == rec.Size
	mtimeDiff := info.ModTime().Sub(rec.UpdatedAt)

	if mtimeDiff < 0 {
		mtimeDiff = -mtimeDiff
	}

	if sizeSame && mtimeDiff <= modifiedTolerance {
		return
	}

	if _, err := h.remote.Delete(ctx, h.workspace, rec.ID); err != nil {
		h.logger.Warn("delete before re-upload failed", slog.String("path", relPath), slog.Any("error", err))
	}

	entry, err := h.transfer.Upload(ctx, pipeline.UploadTask{Workspace: h.workspace, LocalPath: absPath, ParentID: rec.ParentID})
	if err != nil {
		h.publishError(events.StageUpload, relPath, "re-upload failed: "+err.Error())
		return
	}

	if err := h.store.Upsert(ctx, model.LocalRecord{RemoteEntry: entry, LocalPath: absPath, LastSyncedAt: time.Now()}); err != nil {
		h.logger.Error("store upsert after re-upload failed", slog.String("path", relPath), slog.Any("error", err))
	}

	h.suppressor.Mark(relPath)
	h.publishChange(events.ChangeChanged, relPath, "")
}

// Deleted implements watcher.Handler (§4.6 "Deleted").
func (h *fileHandler) Deleted(ctx context.Context, relPath string) {
	absPath := h.absPath(relPath)

	rec, ok, err := h.store.GetByPath(ctx, h.workspace, absPath)
	if err != nil || !ok {
		return
	}

	if _, err := h.remote.Delete(ctx, h.workspace, rec.ID); err != nil {
		h.logger.Warn("remote delete failed", slog.String("path", relPath), slog.Any("error", err))
	}

	if err := h.store.DeleteByPath(ctx, h.workspace, absPath); err != nil {
		h.logger.Error("store delete failed", slog.String("path", relPath), slog.Any("error", err))
	}

	h.publishChange(events.ChangeRemoved, relPath, "")
}

// RenamedFile implements watcher.Handler (§4.6 "Renamed (file)").
func (h *fileHandler) RenamedFile(ctx context.Context, oldRelPath, newRelPath string) {
	oldAbs := h.absPath(oldRelPath)
	newAbs := h.absPath(newRelPath)

	rec, ok, err := h.store.GetByPath(ctx, h.workspace, oldAbs)
	if err != nil || !ok {
		h.CreatedFile(ctx, newRelPath)
		return
	}

	newName := filepath.Base(newAbs)

	if _, err := h.remote.Rename(ctx, h.workspace, rec.ID, newName); err != nil {
		h.publishError(events.StageUpload, newRelPath, "rename failed: "+err.Error())
		return
	}

	rec.Name = newName
	rec.LocalPath = newAbs
	rec.LastSyncedAt = time.Now()

	if err := h.store.Upsert(ctx, rec); err != nil {
		h.logger.Error("store upsert after rename failed", slog.String("path", newRelPath), slog.Any("error", err))
	}

	h.publishChange(events.ChangeRenamed, newRelPath, oldRelPath)
}

// RenamedFolderRefused implements watcher.Handler (§4.6 "Renamed
// (folder)"). relPath is the folder's new (current, on-disk) location;
// the old name is recovered from the Metadata Store record that still
// points at a path which no longer exists, and the rename is reverted.
func (h *fileHandler) RenamedFolderRefused(ctx context.Context, relPath string) {
	newAbs := h.absPath(relPath)

	rec, ok, err := h.findMissingFolderRecord(ctx, filepath.Dir(newAbs))
	if err != nil || !ok {
		h.publishError(events.StageUpload, relPath, "folder rename refused but original name could not be recovered")
		return
	}

	if err := os.Rename(newAbs, rec.LocalPath); err != nil {
		h.publishError(events.StageUpload, relPath, "failed to revert folder rename: "+err.Error())
		return
	}

	h.publishError(events.StageUpload, relPath, "folder renames are not supported; reverted on disk")
}

// findMissingFolderRecord scans the store for a folder record whose
// parent directory matches parentDir and whose recorded path no longer
// exists on disk — the signature of a folder that was just renamed away
// from under us.
func (h *fileHandler) findMissingFolderRecord(ctx context.Context, parentDir string) (model.LocalRecord, bool, error) {
	all, err := h.store.GetAll(ctx, h.workspace)
	if err != nil {
		return model.LocalRecord{}, false, err
	}

	for _, rec := range all {
		if !rec.IsFolder() || filepath.Dir(rec.LocalPath) != parentDir {
			continue
		}

		if _, statErr := os.Stat(rec.LocalPath); errors.Is(statErr, os.ErrNotExist) {
			return rec, true, nil
		}
	}

	return model.LocalRecord{}, false, nil
}

// SafetyScan implements watcher.Handler. It is a lightweight net for
// events fsnotify silently dropped: every record whose local_path no
// longer exists is treated as a deletion missed by the watcher. A full
// reconcile pass (which also catches missed creates) runs separately on
// the periodic timer.
func (h *fileHandler) SafetyScan(ctx context.Context) {
	all, err := h.store.GetAll(ctx, h.workspace)
	if err != nil {
		h.logger.Error("safety scan: store.GetAll failed", slog.Any("error", err))
		return
	}

	for _, rec := range all {
		if rec.LocalPath == "" {
			continue
		}

		if _, statErr := os.Stat(rec.LocalPath); errors.Is(statErr, os.ErrNotExist) {
			relPath, relErr := filepath.Rel(h.syncRoot, rec.LocalPath)
			if relErr != nil {
				continue
			}

			h.Deleted(ctx, model.NormalizePath(relPath))
		}
	}
}
