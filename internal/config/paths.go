package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "syncagent"

// Config file name.
const configFileName = "config.toml"

// maxWorkspaceDirNameLength bounds the sanitized workspace directory
// component (§6 "Local sync root").
const maxWorkspaceDirNameLength = 50

// DefaultConfigDir returns the platform-specific directory for config files.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxXDGDir(home, "XDG_CONFIG_HOME", ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data: the metadata store database and the credentials fallback file.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxXDGDir(home, "XDG_DATA_HOME", ".local/share")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func linuxXDGDir(home, envVar, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultStateDBPath returns the full path to the default metadata store
// database file.
func DefaultStateDBPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, "state.db")
}

// DefaultCredentialsFilePath returns the fallback file path secretstore
// uses when no OS keyring backend is available.
func DefaultCredentialsFilePath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, "credentials.json")
}

// DefaultPIDFilePath returns the path to the daemon's PID/lock file.
func DefaultPIDFilePath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, "syncdaemon.pid")
}

// sanitizeChars replaces characters illegal in filesystem path components
// on at least one major OS.
const sanitizeChars = `<>:"/\|?*`

// WorkspaceDirName computes the per-workspace subdirectory name under the
// sync root: "<workspace-id>_<sanitized-workspace-name>", sanitized so it
// is a legal filename component, max 50 characters, never empty (§6
// "Local sync root").
func WorkspaceDirName(workspaceID int64, workspaceName string) string {
	sanitized := sanitizeFileName(workspaceName)
	if sanitized == "" {
		sanitized = "workspace"
	}

	name := fmt.Sprintf("%d_%s", workspaceID, sanitized)
	if len(name) > maxWorkspaceDirNameLength {
		name = name[:maxWorkspaceDirNameLength]
	}

	return name
}

func sanitizeFileName(name string) string {
	var b strings.Builder

	for _, r := range name {
		if strings.ContainsRune(sanitizeChars, r) || r < 0x20 {
			b.WriteRune('_')

			continue
		}

		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}

// WorkspaceRoot joins the sync root with the computed workspace directory
// name.
func WorkspaceRoot(syncRoot string, workspaceID int64, workspaceName string) string {
	return filepath.Join(syncRoot, WorkspaceDirName(workspaceID, workspaceName))
}
