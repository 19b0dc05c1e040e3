package reconcile

import "errors"

// ErrWorkspaceChanged is returned when the active workspace drifts away
// from the one a pass captured at start, per the workspace guard (§4.8):
// the pass aborts without further mutation, and the caller is expected to
// restart reconciliation against the new workspace.
var ErrWorkspaceChanged = errors.New("reconcile: workspace changed during pass")
