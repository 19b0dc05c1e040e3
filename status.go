package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalervo/syncdaemon/internal/config"
	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync daemon and workspace status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return printStatus(cmd.Context(), cc)
		},
	}
}

func printStatus(ctx context.Context, cc *CLIContext) error {
	running, pid := daemonRunning()

	if running {
		fmt.Printf("daemon: running (pid %d)\n", pid)
	} else {
		fmt.Println("daemon: not running")
	}

	fmt.Printf("workspace: %d (%s)\n", cc.Cfg.WorkspaceID, cc.Cfg.WorkspaceName)
	fmt.Printf("sync root: %s\n", cc.Cfg.SyncRoot)

	st, err := store.NewSQLiteStore(config.DefaultStateDBPath(), cc.Logger)
	if err != nil {
		fmt.Println("metadata store: unavailable (never synced yet?)")

		return nil
	}
	defer st.Close()

	records, err := st.GetAll(ctx, model.WorkspaceID(cc.Cfg.WorkspaceID))
	if err != nil {
		return fmt.Errorf("reading metadata store: %w", err)
	}

	var files, folders int

	var totalSize int64

	for _, r := range records {
		if r.Kind == model.KindFolder {
			folders++
		} else {
			files++
			totalSize += r.Size
		}
	}

	fmt.Printf("tracked entries: %d files (%s), %d folders\n", files, formatSize(totalSize), folders)

	return nil
}

// daemonRunning reports whether the PID file points at a live process.
func daemonRunning() (bool, int) {
	pid, err := readPIDFile(config.DefaultPIDFilePath())
	if err != nil {
		return false, 0
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}

	return true, pid
}
