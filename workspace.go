package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kalervo/syncdaemon/internal/config"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage the active sync workspace",
	}

	cmd.AddCommand(newWorkspaceShowCmd())
	cmd.AddCommand(newWorkspaceSetCmd())

	return cmd
}

func newWorkspaceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the configured workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			fmt.Printf("%d\t%s\t%s\n", cc.Cfg.WorkspaceID, cc.Cfg.WorkspaceName, cc.Cfg.SyncRoot)

			return nil
		},
	}
}

func newWorkspaceSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <workspace-id> <workspace-name>",
		Short: "Switch the active workspace and persist the change",
		Long: "Updates the configured workspace id and name and writes them to disk. " +
			"If the daemon is running, restart it (syncdaemon stop && syncdaemon start) " +
			"to pick up the change; a live daemon is not reconfigured in place by this command.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid workspace id %q: %w", args[0], err)
			}

			cc.Cfg.WorkspaceID = id
			cc.Cfg.WorkspaceName = args[1]

			path := flagConfigPath
			if path == "" {
				path = config.DefaultConfigPath()
			}

			if err := config.Save(path, cc.Cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			statusf(flagQuiet, "Workspace set to %d (%s). Restart the daemon to apply.\n", id, args[1])

			return nil
		},
	}
}
