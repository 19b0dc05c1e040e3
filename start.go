package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalervo/syncdaemon/internal/config"
	"github.com/kalervo/syncdaemon/internal/coordinator"
	"github.com/kalervo/syncdaemon/internal/events"
	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/pipeline"
	"github.com/kalervo/syncdaemon/internal/remoteapi"
	"github.com/kalervo/syncdaemon/internal/secretstore"
	"github.com/kalervo/syncdaemon/internal/store"
)

// mibToBytes converts a config size in MiB to bytes for the large-body
// backoff threshold.
func mibToBytes(mib int) int64 {
	return int64(mib) * 1024 * 1024
}

func newAuthProvider(baseURL string, creds *secretstore.Credentials) (remoteapi.AuthProvider, error) {
	if creds.BearerToken != "" {
		return remoteapi.NewBearerAuthProvider(creds.BearerToken), nil
	}

	jar, err := jarFromCookies(baseURL, creds.Cookies)
	if err != nil {
		return nil, err
	}

	return remoteapi.NewCookieAuthProvider(jar, creds.CSRFToken), nil
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sync daemon",
		Long:  "Starts the background sync engine for the configured workspace and blocks until shut down.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			cleanup, err := writePIDFile(config.DefaultPIDFilePath())
			if err != nil {
				return err
			}
			defer cleanup()

			return runDaemon(cmd.Context(), cc)
		},
	}

	return cmd
}

func runDaemon(parentCtx context.Context, cc *CLIContext) error {
	ctx := shutdownContext(parentCtx, cc.Logger)

	secrets := newSecretStore(cc.Logger)

	creds, err := secrets.Load()
	if err != nil {
		return fmt.Errorf("loading credentials (run 'syncdaemon login' first): %w", err)
	}

	baseURL := cc.Cfg.Remote.BaseURL
	if baseURL == "" {
		baseURL = remoteapi.DefaultBaseURL
	}

	auth, err := newAuthProvider(baseURL, creds)
	if err != nil {
		return err
	}

	threshold := mibToBytes(cc.Cfg.Transfers.LargeFileThresholdMiB)

	metaClient := remoteapi.NewClient(baseURL, defaultHTTPClient(), auth, threshold, cc.Logger)
	transferClient := remoteapi.NewClient(baseURL, transferHTTPClient(), auth, threshold, cc.Logger)

	st, err := store.NewSQLiteStore(config.DefaultStateDBPath(), cc.Logger)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer st.Close()

	bus := events.NewBus(cc.Logger)
	pl := pipeline.New(transferClient, int64(cc.Cfg.Transfers.MaxConcurrentTransfers), bus, cc.Logger)

	workspace := model.WorkspaceID(cc.Cfg.WorkspaceID)
	workspaceName := cc.Cfg.WorkspaceName
	if workspaceName == "" {
		workspaceName = fmt.Sprintf("workspace-%d", workspace)
	}

	opts := coordinator.Options{
		BaseSyncRoot:       cc.Cfg.SyncRoot,
		ExcludedDirNames:   cc.Cfg.Watch.ExcludedDirNames,
		DebounceDelay:      millisOrDefault(cc.Cfg.Watch.DebounceMS),
		EchoTTL:            secondsOrDefault(cc.Cfg.Watch.EchoTTLSeconds),
		PeriodicInterval:   secondsOrDefault(cc.Cfg.Watch.PeriodicIntervalSec),
		BackgroundInterval: secondsOrDefault(cc.Cfg.Watch.BackgroundIntervalSec),
	}

	co := coordinator.New(st, metaClient, pl, bus, opts, cc.Logger)

	cc.Statusf("Starting sync for workspace %d (%s)...\n", workspace, workspaceName)

	if err := co.Start(ctx, workspace, workspaceName); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	defer co.Stop()

	cc.Logger.Info("sync daemon running", "workspace", workspace, "sync_root", cc.Cfg.SyncRoot)

	<-ctx.Done()

	cc.Logger.Info("shutting down")

	return nil
}

func millisOrDefault(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}

	return time.Duration(ms) * time.Millisecond
}

func secondsOrDefault(sec int) time.Duration {
	if sec <= 0 {
		return 0
	}

	return time.Duration(sec) * time.Second
}
