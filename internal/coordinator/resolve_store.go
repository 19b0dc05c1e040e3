package coordinator

import (
	"context"
	"path"
	"path/filepath"
	"time"

	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/store"
)

// defaultParentResolveTimeout bounds how long CreatedFolder waits for a
// parent folder's create to settle in the Metadata Store before deferring
// (§4.6 "resolve parent with retry").
const defaultParentResolveTimeout = 15 * time.Second

// parentResolvePollInterval is how often resolveParentWithRetry re-checks
// the store while waiting.
const parentResolvePollInterval = 500 * time.Millisecond

// resolveParentViaStore looks up the remote id of relPath's parent
// directory by its local path in the Metadata Store. Unlike the
// Reconciler's resolver.Resolve (which reads a transient RemoteTreeMap
// snapshot), the File Watcher has no such snapshot for a single event, so
// it resolves against the durable store instead.
func resolveParentViaStore(ctx context.Context, st store.Store, workspace model.WorkspaceID, syncRoot, relPath string) (model.EntryID, bool) {
	dir := path.Dir(model.NormalizePath(relPath))
	if dir == "" || dir == "." {
		return 0, true
	}

	parentAbs := filepath.Join(syncRoot, filepath.FromSlash(dir))

	rec, ok, err := st.GetByPath(ctx, workspace, parentAbs)
	if err != nil || !ok || !rec.IsFolder() {
		return 0, false
	}

	return rec.ID, true
}

// resolveParentWithRetry polls the store for up to timeout (0 uses
// defaultParentResolveTimeout), giving a just-created parent folder time
// to be recorded before giving up.
func resolveParentWithRetry(ctx context.Context, st store.Store, workspace model.WorkspaceID, syncRoot, relPath string, timeout time.Duration) (model.EntryID, bool) {
	if timeout <= 0 {
		timeout = defaultParentResolveTimeout
	}

	deadline := time.Now().Add(timeout)

	for {
		if id, ok := resolveParentViaStore(ctx, st, workspace, syncRoot, relPath); ok {
			return id, true
		}

		if time.Now().After(deadline) {
			return 0, false
		}

		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(parentResolvePollInterval):
		}
	}
}
