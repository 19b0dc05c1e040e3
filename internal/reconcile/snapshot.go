package reconcile

import (
	"context"
	"fmt"
	"path"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kalervo/syncdaemon/internal/model"
)

// defaultSnapshotFanout bounds how many list_folder calls run concurrently
// during Phase A, so a workspace with thousands of folders cannot exhaust
// HTTP connections or file descriptors.
const defaultSnapshotFanout = 16

// snapshot builds the RemoteTreeMap for workspace by listing the root and
// recursively fanning out list_folder calls (§4.8 Phase A). Every folder
// in the tree gets its own goroutine via an unbounded errgroup; a
// semaphore acquired around each list_folder call is what actually caps
// concurrent network fan-out, so a goroutine blocked waiting for the
// semaphore never holds a recursion slot the way a limited errgroup would.
func (r *Reconciler) snapshot(ctx context.Context, workspace model.WorkspaceID) (*model.RemoteTreeMap, error) {
	tree := model.NewRemoteTreeMap()

	roots, err := r.remote.ListRoot(ctx, workspace)
	if err != nil {
		return nil, fmt.Errorf("reconcile: snapshot list_root: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.snapshotFanout()))

	for _, entry := range roots {
		entry := entry
		relPath := model.NormalizePath(entry.Name)
		tree.Put(relPath, entry)

		if entry.IsFolder() {
			g.Go(func() error {
				return r.snapshotFolder(gctx, workspace, relPath, entry.ID, tree, g, sem)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile: snapshot: %w", err)
	}

	return tree, nil
}

func (r *Reconciler) snapshotFolder(ctx context.Context, workspace model.WorkspaceID, relPath string, folderID model.EntryID, tree *model.RemoteTreeMap, g *errgroup.Group, sem *semaphore.Weighted) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("reconcile: list_folder %s: %w", relPath, err)
	}

	children, err := r.remote.ListFolder(ctx, workspace, folderID)
	sem.Release(1)

	if err != nil {
		return fmt.Errorf("reconcile: list_folder %s: %w", relPath, err)
	}

	for _, child := range children {
		child := child
		childRel := model.NormalizePath(path.Join(relPath, child.Name))
		tree.Put(childRel, child)

		if child.IsFolder() {
			g.Go(func() error {
				return r.snapshotFolder(ctx, workspace, childRel, child.ID, tree, g, sem)
			})
		}
	}

	return nil
}

func (r *Reconciler) snapshotFanout() int {
	if r.snapshotConcurrency < 1 {
		return defaultSnapshotFanout
	}

	return r.snapshotConcurrency
}
