package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalervo/syncdaemon/internal/config"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "stop",
		Short:                 "Stop the running sync daemon",
		Annotations:           map[string]string{skipConfigAnnotation: "true"},
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pidPath := config.DefaultPIDFilePath()

			if err := sendSIGTERM(pidPath); err != nil {
				return err
			}

			statusf(flagQuiet, "Stop signal sent.\n")

			return nil
		},
	}
}

// sendSIGTERM reads the daemon's PID file and asks the running process to
// shut down gracefully, the same path shutdownContext listens for.
func sendSIGTERM(pidPath string) error {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no running daemon found (no PID file at %s)", pidPath)
		}

		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)

		return fmt.Errorf("daemon (PID %d) is not running (stale PID file removed)", pid)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to daemon (PID %d): %w", pid, err)
	}

	return nil
}
