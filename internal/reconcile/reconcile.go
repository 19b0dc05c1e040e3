// Package reconcile is the Reconciler (RX, §4.8): the initial/periodic
// bidirectional sync driver that snapshots the remote tree, walks the
// local tree, and schedules uploads/downloads through the pipeline.
package reconcile

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/kalervo/syncdaemon/internal/echosuppressor"
	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/pipeline"
	"github.com/kalervo/syncdaemon/internal/resolver"
	"github.com/kalervo/syncdaemon/internal/store"
)

// conflictTolerance is the last-writer-wins band (§4.8 "Conflict rule"):
// within it, local wins.
const conflictTolerance = 2 * time.Second

// RemoteAPI is the subset of remoteapi.Client the reconciler depends on.
// Defined at the consumer so tests can inject a fake.
type RemoteAPI interface {
	ListRoot(ctx context.Context, workspace model.WorkspaceID) ([]model.RemoteEntry, error)
	ListFolder(ctx context.Context, workspace model.WorkspaceID, folderID model.EntryID) ([]model.RemoteEntry, error)
	CreateFolder(ctx context.Context, workspace model.WorkspaceID, name string, parentID model.EntryID) (model.RemoteEntry, error)
	Delete(ctx context.Context, workspace model.WorkspaceID, id model.EntryID) (bool, error)
}

// Transferer is the subset of pipeline.Pipeline the reconciler depends on.
type Transferer interface {
	Upload(ctx context.Context, task pipeline.UploadTask) (model.RemoteEntry, error)
	Download(ctx context.Context, task pipeline.DownloadTask) (string, error)
}

// Compile-time check that pipeline.Pipeline satisfies Transferer.
var _ Transferer = (*pipeline.Pipeline)(nil)

// Result summarizes a completed (or aborted) reconcile pass.
type Result struct {
	Aborted        bool
	FoldersCreated int
	Uploaded       int
	Downloaded     int
}

// Reconciler runs reconcile passes against a captured workspace id.
type Reconciler struct {
	store               store.Store
	remote              RemoteAPI
	transfer            Transferer
	suppressor          *echosuppressor.Suppressor
	syncRoot            string
	excludedDirNames    []string
	snapshotConcurrency int
	logger              *slog.Logger
}

// New creates a Reconciler. snapshotConcurrency bounds Phase A's list_folder
// fan-out; 0 uses defaultSnapshotFanout.
func New(st store.Store, remote RemoteAPI, transfer Transferer, suppressor *echosuppressor.Suppressor, syncRoot string, excludedDirNames []string, snapshotConcurrency int, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		store:               st,
		remote:              remote,
		transfer:            transfer,
		suppressor:          suppressor,
		syncRoot:            syncRoot,
		excludedDirNames:    excludedDirNames,
		snapshotConcurrency: snapshotConcurrency,
		logger:              logger,
	}
}

type pendingUpload struct {
	local    localEntry
	parentID model.EntryID
}

type pendingDownload struct {
	relPath string
	entry   model.RemoteEntry
}

// Pass runs one full reconcile pass for workspace. currentWorkspace reports
// the live active workspace, consulted before every mutating step so a
// workspace switch mid-pass aborts cleanly (§4.8 "Workspace guard").
func (r *Reconciler) Pass(ctx context.Context, workspace model.WorkspaceID, currentWorkspace func() model.WorkspaceID) (Result, error) {
	r.logger.Info("reconcile pass starting", slog.String("workspace", workspace.String()))

	tree, err := r.snapshot(ctx, workspace)
	if err != nil {
		return Result{}, err
	}

	if drifted(workspace, currentWorkspace) {
		return Result{Aborted: true}, ErrWorkspaceChanged
	}

	localEntries, err := walkLocalTree(r.syncRoot, r.excludedDirNames)
	if err != nil {
		return Result{}, err
	}

	var result Result

	localNewer := make(map[string]bool)

	if err := r.phaseBFolders(ctx, workspace, tree, localEntries, currentWorkspace, &result); err != nil {
		return result, err
	}

	uploads, err := r.phaseBFiles(ctx, workspace, tree, localEntries, currentWorkspace, localNewer)
	if err != nil {
		return result, err
	}

	result.Uploaded += r.runUploads(ctx, workspace, tree, uploads)

	downloads, err := r.phaseC(ctx, workspace, tree, localEntries, currentWorkspace, localNewer)
	if err != nil {
		return result, err
	}

	result.Downloaded += r.runDownloads(ctx, workspace, tree, downloads)

	uploaded, err := r.phaseD(ctx, workspace, tree, localEntries, currentWorkspace, localNewer)
	if err != nil {
		return result, err
	}

	result.Uploaded += uploaded

	r.logger.Info("reconcile pass complete",
		slog.Int("folders_created", result.FoldersCreated),
		slog.Int("uploaded", result.Uploaded),
		slog.Int("downloaded", result.Downloaded))

	return result, nil
}

func drifted(captured model.WorkspaceID, currentWorkspace func() model.WorkspaceID) bool {
	return currentWorkspace != nil && currentWorkspace() != captured
}

// phaseBFolders creates local-only folders shallowest-first, inserting each
// into tree immediately on success so descendants can resolve (§4.8 Phase B).
func (r *Reconciler) phaseBFolders(ctx context.Context, workspace model.WorkspaceID, tree *model.RemoteTreeMap, localEntries []localEntry, currentWorkspace func() model.WorkspaceID, result *Result) error {
	for _, f := range sortFoldersByDepth(localEntries) {
		if drifted(workspace, currentWorkspace) {
			return ErrWorkspaceChanged
		}

		if _, ok := tree.Get(f.RelPath); ok {
			continue
		}

		res := resolver.Resolve(tree, f.RelPath)
		if res.IsUnresolved() {
			r.logger.Debug("deferring folder create, parent unresolved", slog.String("path", f.RelPath))
			continue
		}

		parentID := model.EntryID(0)
		if res.IsResolved() {
			parentID = res.ID
		}

		name := path.Base(f.RelPath)
		tree.Put(f.RelPath, model.RemoteEntry{
			ID: model.PlaceholderEntryID, Name: name, Kind: model.KindFolder,
			ParentID: parentID, WorkspaceID: workspace,
		})

		entry, err := r.remote.CreateFolder(ctx, workspace, name, parentID)
		if err != nil {
			tree.Delete(f.RelPath)
			r.logger.Warn("create_folder failed", slog.String("path", f.RelPath), slog.Any("error", err))

			continue
		}

		tree.Put(f.RelPath, entry)
		result.FoldersCreated++

		if err := r.store.Upsert(ctx, model.LocalRecord{RemoteEntry: entry, LocalPath: f.AbsPath, LastSyncedAt: time.Now()}); err != nil {
			r.logger.Error("store upsert after create_folder failed", slog.String("path", f.RelPath), slog.Any("error", err))
		}
	}

	return nil
}

// phaseBFiles classifies local files against the snapshot, enqueuing
// new-file uploads and flagging same-path/size-differs local-newer files
// for Phase D (§4.8 Phase B).
func (r *Reconciler) phaseBFiles(ctx context.Context, workspace model.WorkspaceID, tree *model.RemoteTreeMap, localEntries []localEntry, currentWorkspace func() model.WorkspaceID, localNewer map[string]bool) ([]pendingUpload, error) {
	var uploads []pendingUpload

	for _, f := range localEntries {
		if f.IsDir {
			continue
		}

		if drifted(workspace, currentWorkspace) {
			return nil, ErrWorkspaceChanged
		}

		remoteEntry, ok := tree.Get(f.RelPath)
		if ok {
			if remoteEntry.Size == f.Size {
				if err := r.store.Upsert(ctx, model.LocalRecord{RemoteEntry: remoteEntry, LocalPath: f.AbsPath, LastSyncedAt: time.Now()}); err != nil {
					r.logger.Error("store upsert failed", slog.String("path", f.RelPath), slog.Any("error", err))
				}

				continue
			}

			// A same-path size mismatch means the content genuinely
			// differs, even if the timestamps fall inside the tolerance
			// band — decideSide's sideEqual is a tie-break for deciding
			// who wins, not a signal that there's nothing to sync. The
			// conflict rule makes local win ties, so treat sideEqual the
			// same as sideLocalNewer here.
			if decideSide(f.ModTime, remoteEntry.UpdatedAt) != sideRemoteNewer {
				localNewer[f.RelPath] = true
			}

			continue
		}

		res := resolver.Resolve(tree, f.RelPath)
		if res.IsUnresolved() {
			r.logger.Debug("deferring upload, parent unresolved", slog.String("path", f.RelPath))
			continue
		}

		parentID := model.EntryID(0)
		if res.IsResolved() {
			parentID = res.ID
		}

		tree.Put(f.RelPath, model.RemoteEntry{
			ID: model.PlaceholderEntryID, Name: path.Base(f.RelPath), Kind: model.KindFile,
			Size: f.Size, ParentID: parentID, WorkspaceID: workspace,
		})

		uploads = append(uploads, pendingUpload{local: f, parentID: parentID})
	}

	return uploads, nil
}

// phaseC walks the remote snapshot, downloading remote-only or remote-newer
// files and flagging local-newer files for Phase D (§4.8 Phase C).
func (r *Reconciler) phaseC(ctx context.Context, workspace model.WorkspaceID, tree *model.RemoteTreeMap, localEntries []localEntry, currentWorkspace func() model.WorkspaceID, localNewer map[string]bool) ([]pendingDownload, error) {
	localByPath := make(map[string]localEntry, len(localEntries))
	for _, e := range localEntries {
		if !e.IsDir {
			localByPath[e.RelPath] = e
		}
	}

	var downloads []pendingDownload

	for relPath, entry := range tree.Snapshot() {
		if entry.IsFolder() || entry.IsPlaceholder() {
			continue
		}

		if drifted(workspace, currentWorkspace) {
			return nil, ErrWorkspaceChanged
		}

		local, ok := localByPath[relPath]
		if !ok {
			downloads = append(downloads, pendingDownload{relPath: relPath, entry: entry})
			continue
		}

		switch decideSide(local.ModTime, entry.UpdatedAt) {
		case sideRemoteNewer:
			downloads = append(downloads, pendingDownload{relPath: relPath, entry: entry})
		case sideLocalNewer:
			localNewer[relPath] = true
		default:
			if err := r.store.Upsert(ctx, model.LocalRecord{RemoteEntry: entry, LocalPath: local.AbsPath, LastSyncedAt: time.Now()}); err != nil {
				r.logger.Error("store upsert failed", slog.String("path", relPath), slog.Any("error", err))
			}
		}
	}

	return downloads, nil
}

// phaseD re-uploads files flagged local-newer by Phase B/C, deleting the
// stale remote entry first so the remote client's duplicate-suppression
// heuristic cannot mistake the new content for the old (name, size) pair
// (§4.8 Phase D).
func (r *Reconciler) phaseD(ctx context.Context, workspace model.WorkspaceID, tree *model.RemoteTreeMap, localEntries []localEntry, currentWorkspace func() model.WorkspaceID, localNewer map[string]bool) (int, error) {
	localByPath := make(map[string]localEntry, len(localEntries))
	for _, e := range localEntries {
		if !e.IsDir {
			localByPath[e.RelPath] = e
		}
	}

	uploaded := 0

	for relPath := range localNewer {
		if drifted(workspace, currentWorkspace) {
			return uploaded, ErrWorkspaceChanged
		}

		local, ok := localByPath[relPath]
		if !ok {
			continue
		}

		existing, ok := tree.Get(relPath)
		if !ok {
			continue
		}

		if !r.suppressor.IsRecent(relPath) {
			if _, err := r.remote.Delete(ctx, workspace, existing.ID); err != nil {
				r.logger.Warn("delete before re-upload failed", slog.String("path", relPath), slog.Any("error", err))
			}
		}

		entry, err := r.transfer.Upload(ctx, pipeline.UploadTask{Workspace: workspace, LocalPath: local.AbsPath, ParentID: existing.ParentID})
		if err != nil {
			r.logger.Warn("phase D upload failed", slog.String("path", relPath), slog.Any("error", err))
			continue
		}

		tree.Put(relPath, entry)
		r.suppressor.Mark(relPath)

		if err := r.store.Upsert(ctx, model.LocalRecord{RemoteEntry: entry, LocalPath: local.AbsPath, LastSyncedAt: time.Now()}); err != nil {
			r.logger.Error("store upsert after phase D upload failed", slog.String("path", relPath), slog.Any("error", err))
		}

		uploaded++
	}

	return uploaded, nil
}

// runUploads fires every pending upload concurrently (bounded by the
// transfer pipeline's own semaphore) and reports the number that succeeded.
// A failed upload is not fatal to its siblings: the pipeline already
// emitted an error event, and the placeholder is removed so the next pass
// retries.
func (r *Reconciler) runUploads(ctx context.Context, workspace model.WorkspaceID, tree *model.RemoteTreeMap, uploads []pendingUpload) int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		uploaded int
	)

	for _, u := range uploads {
		u := u

		wg.Add(1)

		go func() {
			defer wg.Done()

			entry, err := r.transfer.Upload(ctx, pipeline.UploadTask{Workspace: workspace, LocalPath: u.local.AbsPath, ParentID: u.parentID})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				tree.Delete(u.local.RelPath)
				r.logger.Warn("upload failed", slog.String("path", u.local.RelPath), slog.Any("error", err))

				return
			}

			tree.Put(u.local.RelPath, entry)
			r.suppressor.Mark(u.local.RelPath)
			uploaded++

			if err := r.store.Upsert(ctx, model.LocalRecord{RemoteEntry: entry, LocalPath: u.local.AbsPath, LastSyncedAt: time.Now()}); err != nil {
				r.logger.Error("store upsert after upload failed", slog.String("path", u.local.RelPath), slog.Any("error", err))
			}
		}()
	}

	wg.Wait()

	return uploaded
}

// runDownloads mirrors runUploads for Phase C's download batch.
func (r *Reconciler) runDownloads(ctx context.Context, workspace model.WorkspaceID, tree *model.RemoteTreeMap, downloads []pendingDownload) int {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		downloaded int
	)

	for _, d := range downloads {
		d := d

		wg.Add(1)

		go func() {
			defer wg.Done()

			destPath, err := r.transfer.Download(ctx, pipeline.DownloadTask{Workspace: workspace, Entry: d.entry, DestDir: path.Dir(absPathFor(r.syncRoot, d.relPath))})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				r.logger.Warn("download failed", slog.String("path", d.relPath), slog.Any("error", err))
				return
			}

			downloaded++
			r.suppressor.Mark(d.relPath)

			if err := r.store.Upsert(ctx, model.LocalRecord{RemoteEntry: d.entry, LocalPath: destPath, LastSyncedAt: time.Now()}); err != nil {
				r.logger.Error("store upsert after download failed", slog.String("path", d.relPath), slog.Any("error", err))
			}
		}()
	}

	wg.Wait()

	return downloaded
}

type side int

const (
	sideEqual side = iota
	sideLocalNewer
	sideRemoteNewer
)

// decideSide applies the conflict rule (§4.8): last-writer-wins on
// updated_at with a 2-second tolerance band; within the band local wins.
func decideSide(localModTime, remoteUpdatedAt time.Time) side {
	diff := remoteUpdatedAt.Sub(localModTime)

	switch {
	case diff > conflictTolerance:
		return sideRemoteNewer
	case diff < -conflictTolerance:
		return sideLocalNewer
	default:
		return sideEqual
	}
}

func absPathFor(syncRoot, relPath string) string {
	return path.Join(syncRoot, relPath)
}
