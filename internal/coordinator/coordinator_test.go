package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalervo/syncdaemon/internal/events"
	"github.com/kalervo/syncdaemon/internal/model"
)

func newTestCoordinator(t *testing.T, base string, st *fakeStore, remote *fakeRemote, transfer *fakeTransferer) *Coordinator {
	t.Helper()

	bus := events.NewBus(discardLogger())

	return New(st, remote, transfer, bus, Options{
		BaseSyncRoot:     base,
		PeriodicInterval: time.Hour,
	}, discardLogger())
}

func TestStartRunsInitialPassBeforeReturning(t *testing.T) {
	base := t.TempDir()

	remote := newFakeRemote()
	remote.register(model.RemoteEntry{ID: 1, Name: "remote-only.txt", Kind: model.KindFile, Size: 3, WorkspaceID: testWorkspace, UpdatedAt: time.Now()})

	st := newFakeStore()
	transfer := newFakeTransferer()

	c := newTestCoordinator(t, base, st, remote, transfer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The workspace-scoped sync root doesn't exist yet; Start must create
	// it, run an initial reconcile pass that downloads the remote-only
	// file, and only then hand off to the watcher.
	err := c.Start(ctx, testWorkspace, "myworkspace")
	require.NoError(t, err)
	defer c.Stop()

	syncRoot := c.syncRoot
	_, statErr := os.Stat(syncRoot)
	assert.NoError(t, statErr, "Start should create the workspace sync root")

	_, downloadErr := os.Stat(filepath.Join(syncRoot, "remote-only.txt"))
	assert.NoError(t, downloadErr, "initial pass should have downloaded the remote-only file")
}

func TestStopIsIdempotentBeforeStart(t *testing.T) {
	base := t.TempDir()
	st := newFakeStore()
	remote := newFakeRemote()
	transfer := newFakeTransferer()

	c := newTestCoordinator(t, base, st, remote, transfer)

	assert.NotPanics(t, func() { c.Stop() })
}

func TestNewLocalFileIsUploadedWhileRunning(t *testing.T) {
	base := t.TempDir()
	st := newFakeStore()
	remote := newFakeRemote()
	transfer := newFakeTransfererWithRemote(remote)

	bus := events.NewBus(discardLogger())
	c := New(st, remote, transfer, bus, Options{
		BaseSyncRoot:     base,
		PeriodicInterval: 50 * time.Millisecond,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, testWorkspace, "ticking"))
	defer c.Stop()

	// Drop a new local-only file directly into the sync root. Either the
	// running File Watcher or the next periodic reconcile pass should
	// eventually upload it — the combination is what keeps the remote in
	// sync with changes made while the watcher is briefly stopped around
	// each pass.
	require.NoError(t, os.WriteFile(filepath.Join(c.syncRoot, "dropped.txt"), []byte("hi"), 0o644))

	require.Eventually(t, func() bool {
		return len(transfer.uploads) > 0
	}, 2*time.Second, 20*time.Millisecond, "the new file should have been uploaded")
}

func TestSwitchWorkspaceMovesToNewSyncRoot(t *testing.T) {
	base := t.TempDir()
	st := newFakeStore()
	remote := newFakeRemote()
	transfer := newFakeTransferer()

	c := newTestCoordinator(t, base, st, remote, transfer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, testWorkspace, "first"))
	firstRoot := c.syncRoot

	require.NoError(t, c.SwitchWorkspace(ctx, model.WorkspaceID(2), "second"))
	defer c.Stop()

	assert.NotEqual(t, firstRoot, c.syncRoot)
	_, err := os.Stat(c.syncRoot)
	assert.NoError(t, err)
}

func TestRenameWorkspaceDirMovesLocalDirectory(t *testing.T) {
	base := t.TempDir()
	st := newFakeStore()
	remote := newFakeRemote()
	transfer := newFakeTransferer()

	c := newTestCoordinator(t, base, st, remote, transfer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, testWorkspace, "old-name"))
	defer c.Stop()

	oldRoot := c.syncRoot
	require.NoError(t, os.WriteFile(filepath.Join(oldRoot, "keep.txt"), []byte("hi"), 0o644))

	require.NoError(t, c.RenameWorkspaceDir(ctx, "new-name"))

	_, oldErr := os.Stat(oldRoot)
	assert.True(t, os.IsNotExist(oldErr))

	_, newErr := os.Stat(filepath.Join(c.syncRoot, "keep.txt"))
	assert.NoError(t, newErr, "file should have moved with the directory")
}

// TestMarkSyncRootAsEchoesUsesWatcherKeySpace regresses a bug where
// markSyncRootAsEchoes marked the Echo Suppressor with absolute
// filesystem paths while the File Watcher always queries it with a
// workspace-relative, normalized path — so a just-downloaded file's
// watcher event was never vetoed.
func TestMarkSyncRootAsEchoesUsesWatcherKeySpace(t *testing.T) {
	base := t.TempDir()
	st := newFakeStore()
	remote := newFakeRemote()
	transfer := newFakeTransferer()

	c := newTestCoordinator(t, base, st, remote, transfer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, testWorkspace, "myworkspace"))
	defer c.Stop()

	require.NoError(t, os.MkdirAll(filepath.Join(c.syncRoot, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.syncRoot, "sub", "file.txt"), []byte("hi"), 0o644))

	c.markSyncRootAsEchoes()

	assert.True(t, c.suppressor.IsRecent("sub/file.txt"))
}

func TestRenameWorkspaceDirNoopWhenNameUnchanged(t *testing.T) {
	base := t.TempDir()
	st := newFakeStore()
	remote := newFakeRemote()
	transfer := newFakeTransferer()

	c := newTestCoordinator(t, base, st, remote, transfer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, testWorkspace, "same-name"))
	defer c.Stop()

	root := c.syncRoot

	require.NoError(t, c.RenameWorkspaceDir(ctx, "same-name"))
	assert.Equal(t, root, c.syncRoot)
}
