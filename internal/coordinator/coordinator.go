// Package coordinator is the Sync Coordinator (SC, §4.9): it owns the
// periodic reconcile timer, stops and restarts the File Watcher around
// each pass, marks the sync root as echoes after a pass settles, and
// orchestrates workspace switches and renames.
package coordinator

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kalervo/syncdaemon/internal/config"
	"github.com/kalervo/syncdaemon/internal/debounce"
	"github.com/kalervo/syncdaemon/internal/echosuppressor"
	"github.com/kalervo/syncdaemon/internal/events"
	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/reconcile"
	"github.com/kalervo/syncdaemon/internal/store"
	"github.com/kalervo/syncdaemon/internal/watcher"
)

// postPassSettleDelay is how long the Coordinator waits, after marking
// the sync root as echoes, before restarting the File Watcher — enough
// for the filesystem's own event queue to drain the burst a large
// download batch just produced (§4.9).
const postPassSettleDelay = 2 * time.Second

// RemoteAPI is the full remote surface the Coordinator's owned components
// need: the Reconciler's read/create operations plus the handler's
// rename/delete operations. Satisfied by *remoteapi.Client.
type RemoteAPI interface {
	reconcile.RemoteAPI
	Rename(ctx context.Context, workspace model.WorkspaceID, id model.EntryID, newName string) (bool, error)
}

// Options configures a Coordinator. Durations <= 0 use the package
// defaults (matching config.DefaultConfig's values).
type Options struct {
	BaseSyncRoot        string
	ExcludedDirNames    []string
	DebounceDelay       time.Duration
	EchoTTL             time.Duration
	PeriodicInterval    time.Duration
	BackgroundInterval  time.Duration
	Background          bool
	SnapshotConcurrency int
}

// Coordinator drives the sync engine's lifecycle for a single active
// workspace at a time.
type Coordinator struct {
	base                string
	excludedDirNames    []string
	debounceDelay       time.Duration
	echoTTL             time.Duration
	periodicInterval    time.Duration
	backgroundInterval  time.Duration
	background          bool
	snapshotConcurrency int

	store    store.Store
	remote   RemoteAPI
	transfer reconcile.Transferer
	bus      *events.Bus
	logger   *slog.Logger

	mu            sync.Mutex
	workspace     model.WorkspaceID
	workspaceName string
	syncRoot      string
	suppressor    *echosuppressor.Suppressor
	debouncer     *debounce.Debouncer
	reconciler    *reconcile.Reconciler

	watchCancel context.CancelFunc
	watchDone   chan struct{}

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a Coordinator. remote is typically a *remoteapi.Client;
// transfer is typically a *pipeline.Pipeline.
func New(st store.Store, remote RemoteAPI, transfer reconcile.Transferer, bus *events.Bus, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = debounce.DefaultCooldown
	}

	if opts.EchoTTL <= 0 {
		opts.EchoTTL = echosuppressor.DefaultTTL
	}

	if opts.PeriodicInterval <= 0 {
		opts.PeriodicInterval = 5 * time.Minute
	}

	if opts.BackgroundInterval <= 0 {
		opts.BackgroundInterval = 2 * time.Minute
	}

	return &Coordinator{
		base:                opts.BaseSyncRoot,
		excludedDirNames:    opts.ExcludedDirNames,
		debounceDelay:       opts.DebounceDelay,
		echoTTL:             opts.EchoTTL,
		periodicInterval:    opts.PeriodicInterval,
		backgroundInterval:  opts.BackgroundInterval,
		background:          opts.Background,
		snapshotConcurrency: opts.SnapshotConcurrency,
		store:               st,
		remote:              remote,
		transfer:            transfer,
		bus:                 bus,
		logger:              logger,
	}
}

// Start performs the initial reconcile pass for workspace, then starts
// the File Watcher and the periodic timer. It returns once the first
// pass and watcher startup complete; the periodic loop continues in the
// background until Stop is called.
func (c *Coordinator) Start(ctx context.Context, workspace model.WorkspaceID, workspaceName string) error {
	c.mu.Lock()
	c.workspace = workspace
	c.workspaceName = workspaceName
	c.syncRoot = config.WorkspaceRoot(c.base, int64(workspace), workspaceName)
	c.suppressor = echosuppressor.New(c.echoTTL, c.logger)
	c.debouncer = debounce.New(c.debounceDelay, debounce.DefaultColdStartGrace, time.Now())
	c.reconciler = reconcile.New(c.store, c.remote, c.transfer, c.suppressor, c.syncRoot, c.excludedDirNames, c.snapshotConcurrency, c.logger)
	c.mu.Unlock()

	if err := os.MkdirAll(c.syncRoot, 0o755); err != nil {
		return fmt.Errorf("coordinator: creating sync root %s: %w", c.syncRoot, err)
	}

	if _, err := c.runPass(ctx); err != nil {
		c.stopWatcher()
		return fmt.Errorf("coordinator: initial reconcile pass: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.loopCancel = cancel
	c.loopDone = make(chan struct{})

	go func() {
		defer close(c.loopDone)
		c.periodicLoop(loopCtx)
	}()

	// The Echo Suppressor's expiry sweep lives as long as the periodic loop.
	go c.suppressor.Run(loopCtx)

	return nil
}

// Stop cancels the periodic loop and the watcher and waits for both to
// exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	loopCancel := c.loopCancel
	loopDone := c.loopDone
	c.mu.Unlock()

	if loopCancel != nil {
		loopCancel()
	}

	if loopDone != nil {
		<-loopDone
	}

	c.stopWatcher()
}

func (c *Coordinator) currentWorkspace() model.WorkspaceID {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.workspace
}

// startWatcher builds a fresh Watcher for the current syncRoot/workspace
// and runs it in the background.
func (c *Coordinator) startWatcher(ctx context.Context) {
	c.mu.Lock()
	syncRoot := c.syncRoot
	workspace := c.workspace
	suppressor := c.suppressor
	debouncer := c.debouncer
	c.mu.Unlock()

	handler := newFileHandler(workspace, syncRoot, c.store, c.remote, c.transfer, suppressor, c.bus, c.logger)
	w := watcher.New(syncRoot, workspace, c.excludedDirNames, debouncer, suppressor, handler, c.logger)

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.watchCancel = cancel
	c.watchDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)

		if err := w.Run(watchCtx, c.currentWorkspace); err != nil && watchCtx.Err() == nil {
			c.logger.Error("watcher exited with error", slog.Any("error", err))
		}
	}()
}

// stopWatcher cancels the running watcher and waits for it to exit. Safe
// to call when no watcher is running.
func (c *Coordinator) stopWatcher() {
	c.mu.Lock()
	cancel := c.watchCancel
	done := c.watchDone
	c.watchCancel = nil
	c.watchDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// runPass stops the watcher, runs one reconcile pass, marks the sync
// root as echoes, waits out the settle delay, and restarts the watcher
// (§4.9, responsibilities 1-2).
func (c *Coordinator) runPass(ctx context.Context) (reconcile.Result, error) {
	c.stopWatcher()

	c.mu.Lock()
	workspace := c.workspace
	reconciler := c.reconciler
	c.mu.Unlock()

	result, err := reconciler.Pass(ctx, workspace, c.currentWorkspace)
	if err != nil {
		c.startWatcher(ctx)
		return result, err
	}

	c.markSyncRootAsEchoes()

	select {
	case <-time.After(postPassSettleDelay):
	case <-ctx.Done():
	}

	c.startWatcher(ctx)

	return result, nil
}

// markSyncRootAsEchoes marks every regular file under the sync root as
// recently touched, inoculating the File Watcher against the burst of
// events a large download pass just generated (§4.9 responsibility 2).
func (c *Coordinator) markSyncRootAsEchoes() {
	c.mu.Lock()
	syncRoot := c.syncRoot
	suppressor := c.suppressor
	c.mu.Unlock()

	_ = filepath.WalkDir(syncRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(syncRoot, path)
		if relErr != nil {
			return nil
		}

		suppressor.Mark(model.NormalizePath(relPath))

		return nil
	})
}

// periodicLoop runs runPass on the configured interval until ctx is
// canceled (§4.9 responsibility 3).
func (c *Coordinator) periodicLoop(ctx context.Context) {
	interval := c.periodicInterval
	if c.background {
		interval = c.backgroundInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.runPass(ctx); err != nil {
				c.logger.Warn("periodic reconcile pass failed", slog.Any("error", err))
			}
		}
	}
}

// SwitchWorkspace stops the Coordinator entirely and restarts it against
// the new workspace, running a fresh initial reconcile pass before the
// File Watcher resumes (§4.9 responsibility 4).
func (c *Coordinator) SwitchWorkspace(ctx context.Context, workspace model.WorkspaceID, workspaceName string) error {
	c.Stop()

	return c.Start(ctx, workspace, workspaceName)
}

// RenameWorkspaceDir handles a detected remote workspace rename: it stops
// the watcher, moves the local directory to the new sanitized name, and
// updates every derived path atomically before restarting (§4.9
// "detects a remote workspace rename and performs a local directory
// move, updating all derived paths atomically").
func (c *Coordinator) RenameWorkspaceDir(ctx context.Context, newWorkspaceName string) error {
	c.mu.Lock()
	oldRoot := c.syncRoot
	workspace := c.workspace
	oldName := c.workspaceName
	c.mu.Unlock()

	newRoot := config.WorkspaceRoot(c.base, int64(workspace), newWorkspaceName)
	if newRoot == oldRoot {
		return nil
	}

	c.stopWatcher()
	c.logger.Info("workspace renamed, moving local directory",
		slog.String("old_name", oldName), slog.String("new_name", newWorkspaceName))

	if err := os.MkdirAll(filepath.Dir(newRoot), 0o755); err != nil {
		c.startWatcher(ctx)
		return fmt.Errorf("coordinator: preparing rename destination: %w", err)
	}

	if err := os.Rename(oldRoot, newRoot); err != nil {
		c.startWatcher(ctx)
		return fmt.Errorf("coordinator: moving sync root %s -> %s: %w", oldRoot, newRoot, err)
	}

	c.mu.Lock()
	c.workspaceName = newWorkspaceName
	c.syncRoot = newRoot
	c.reconciler = reconcile.New(c.store, c.remote, c.transfer, c.suppressor, newRoot, c.excludedDirNames, c.snapshotConcurrency, c.logger)
	c.mu.Unlock()

	c.startWatcher(ctx)

	return nil
}
