package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalervo/syncdaemon/internal/model"
)

// itemDTO is the wire representation of a remote entry.
type itemDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Folder    bool   `json:"is_folder"`
	ParentID  int64  `json:"parent_id"`
	Size      int64  `json:"size"`
	Hash      string `json:"hash,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

func (d itemDTO) toEntry(workspace model.WorkspaceID) model.RemoteEntry {
	kind := model.KindFile
	if d.Folder {
		kind = model.KindFolder
	}

	updated, _ := time.Parse(time.RFC3339, d.UpdatedAt)

	return model.RemoteEntry{
		ID:          model.EntryID(d.ID),
		Name:        d.Name,
		Kind:        kind,
		ParentID:    model.EntryID(d.ParentID),
		Size:        d.Size,
		Hash:        d.Hash,
		UpdatedAt:   updated,
		WorkspaceID: workspace,
	}
}

type listResponse struct {
	Items []itemDTO `json:"items"`
}

type spaceUsageResponse struct {
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// ListRoot returns the immediate children of the workspace's root folder.
func (c *Client) ListRoot(ctx context.Context, workspace model.WorkspaceID) ([]model.RemoteEntry, error) {
	return c.list(ctx, workspace, fmt.Sprintf("/workspaces/%s/root/children", workspace))
}

// ListFolder returns the immediate children of folderID within workspace.
func (c *Client) ListFolder(ctx context.Context, workspace model.WorkspaceID, folderID model.EntryID) ([]model.RemoteEntry, error) {
	return c.list(ctx, workspace, fmt.Sprintf("/workspaces/%s/items/%s/children", workspace, folderID))
}

func (c *Client) list(ctx context.Context, workspace model.WorkspaceID, path string) ([]model.RemoteEntry, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("remoteapi: decoding list response: %w", err)
	}

	entries := make([]model.RemoteEntry, 0, len(body.Items))
	for _, item := range body.Items {
		entries = append(entries, item.toEntry(workspace))
	}

	return entries, nil
}

// Upload streams localPath's contents to the given parent folder. Before
// sending, it lists parentID's children and returns the existing entry
// if one matches (name, size) case-insensitively — the at-most-once
// duplicate check described in §4.2.
func (c *Client) Upload(ctx context.Context, workspace model.WorkspaceID, localPath string, parentID model.EntryID) (model.RemoteEntry, error) {
	return c.UploadWithProgress(ctx, workspace, localPath, parentID, nil)
}

// UploadWithProgress behaves like Upload, additionally invoking report
// as the file streams to the remote (nil report behaves like Upload).
func (c *Client) UploadWithProgress(ctx context.Context, workspace model.WorkspaceID, localPath string, parentID model.EntryID, report ProgressFunc) (model.RemoteEntry, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return model.RemoteEntry{}, fmt.Errorf("remoteapi: stat %s: %w", localPath, err)
	}

	name := filepath.Base(localPath)

	siblings, err := c.childrenOf(ctx, workspace, parentID)
	if err != nil {
		return model.RemoteEntry{}, err
	}

	if existing, ok := findDuplicate(siblings, name, info.Size()); ok {
		c.logger.Info("upload skipped, duplicate found on remote",
			slog.String("name", name), slog.Int64("size", info.Size()))

		return existing, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return model.RemoteEntry{}, fmt.Errorf("remoteapi: opening %s: %w", localPath, err)
	}
	defer f.Close()

	path := fmt.Sprintf("/workspaces/%s/items/%s/children/%s/content", workspace, parentID, url.PathEscape(name))

	body := newProgressReader(f, info.Size(), report)

	resp, err := c.Do(ctx, http.MethodPut, path, body, info.Size())
	if err != nil {
		return model.RemoteEntry{}, err
	}
	defer resp.Body.Close()

	var item itemDTO
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return model.RemoteEntry{}, fmt.Errorf("remoteapi: decoding upload response: %w", err)
	}

	return item.toEntry(workspace), nil
}

// childrenOf lists parentID's children, or the workspace root if parentID
// is zero.
func (c *Client) childrenOf(ctx context.Context, workspace model.WorkspaceID, parentID model.EntryID) ([]model.RemoteEntry, error) {
	if parentID.IsZero() {
		return c.ListRoot(ctx, workspace)
	}

	return c.ListFolder(ctx, workspace, parentID)
}

// findDuplicate implements the upload duplicate check: an exact
// case-insensitive name+size match, plus a heuristic for encoding-mangled
// names (same size, names equal once non-alphanumeric runs are collapsed).
func findDuplicate(siblings []model.RemoteEntry, name string, size int64) (model.RemoteEntry, bool) {
	lowerName := strings.ToLower(name)

	for _, s := range siblings {
		if s.IsFolder() || s.Size != size {
			continue
		}

		if strings.ToLower(s.Name) == lowerName {
			return s, true
		}
	}

	folded := foldMangled(name)

	for _, s := range siblings {
		if s.IsFolder() || s.Size != size {
			continue
		}

		if foldMangled(s.Name) == folded {
			return s, true
		}
	}

	return model.RemoteEntry{}, false
}

// foldMangled collapses runs of non-alphanumeric characters to a single
// underscore and lowercases, matching names that differ only by
// encoding-mangled punctuation (e.g. "café.txt" vs "caf_.txt").
func foldMangled(name string) string {
	var b strings.Builder

	prevSkipped := false

	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevSkipped = false

			continue
		}

		if !prevSkipped {
			b.WriteByte('_')
			prevSkipped = true
		}
	}

	return b.String()
}

// Download streams entry's content to destDir, sanitizing the filename
// for the host filesystem, and returns the absolute path written.
func (c *Client) Download(ctx context.Context, workspace model.WorkspaceID, entry model.RemoteEntry, destDir string) (string, error) {
	return c.DownloadWithProgress(ctx, workspace, entry, destDir, nil)
}

// DownloadWithProgress behaves like Download, additionally invoking
// report as the file streams to disk (nil report behaves like Download).
func (c *Client) DownloadWithProgress(ctx context.Context, workspace model.WorkspaceID, entry model.RemoteEntry, destDir string, report ProgressFunc) (string, error) {
	path := fmt.Sprintf("/workspaces/%s/items/%s/content", workspace, entry.ID)

	resp, err := c.Do(ctx, http.MethodGet, path, nil, 0)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody := newProgressReader(resp.Body, entry.Size, report)

	destPath := filepath.Join(destDir, sanitizeFileName(entry.Name))
	partialPath := destPath + ".partial"

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("remoteapi: creating %s: %w", destDir, err)
	}

	out, err := os.OpenFile(partialPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("remoteapi: creating %s: %w", partialPath, err)
	}

	if _, err := io.Copy(out, respBody); err != nil {
		out.Close()
		os.Remove(partialPath)

		return "", fmt.Errorf("remoteapi: writing %s: %w", partialPath, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(partialPath)
		return "", fmt.Errorf("remoteapi: closing %s: %w", partialPath, err)
	}

	if err := os.Rename(partialPath, destPath); err != nil {
		return "", fmt.Errorf("remoteapi: renaming %s to %s: %w", partialPath, destPath, err)
	}

	return destPath, nil
}

// sanitizeFileName replaces characters illegal on common host filesystems
// with an underscore.
func sanitizeFileName(name string) string {
	const illegal = `<>:"/\|?*`

	var b strings.Builder

	for _, r := range name {
		if strings.ContainsRune(illegal, r) || r < 0x20 {
			b.WriteByte('_')
			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

type createFolderRequest struct {
	Name             string `json:"name"`
	ConflictBehavior string `json:"conflict_behavior"`
}

// CreateFolder creates a folder named name under parentID. Idempotent:
// if the remote reports a conflict, the caller's children are re-listed
// and the existing folder entry returned instead of erroring.
func (c *Client) CreateFolder(ctx context.Context, workspace model.WorkspaceID, name string, parentID model.EntryID) (model.RemoteEntry, error) {
	body, err := json.Marshal(createFolderRequest{Name: name, ConflictBehavior: "fail"})
	if err != nil {
		return model.RemoteEntry{}, fmt.Errorf("remoteapi: marshaling create-folder request: %w", err)
	}

	path := fmt.Sprintf("/workspaces/%s/items/%s/children", workspace, parentID)

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Err == ErrConflict {
			return c.findExistingFolder(ctx, workspace, parentID, name)
		}

		return model.RemoteEntry{}, err
	}
	defer resp.Body.Close()

	var item itemDTO
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return model.RemoteEntry{}, fmt.Errorf("remoteapi: decoding create-folder response: %w", err)
	}

	return item.toEntry(workspace), nil
}

func (c *Client) findExistingFolder(ctx context.Context, workspace model.WorkspaceID, parentID model.EntryID, name string) (model.RemoteEntry, error) {
	siblings, err := c.childrenOf(ctx, workspace, parentID)
	if err != nil {
		return model.RemoteEntry{}, err
	}

	lowerName := strings.ToLower(name)

	for _, s := range siblings {
		if s.IsFolder() && strings.ToLower(s.Name) == lowerName {
			return s, nil
		}
	}

	return model.RemoteEntry{}, fmt.Errorf("remoteapi: folder %q reported as existing but not found among children of %s", name, parentID)
}

type renameRequest struct {
	Name string `json:"name"`
}

// Rename changes id's name on the remote.
func (c *Client) Rename(ctx context.Context, workspace model.WorkspaceID, id model.EntryID, newName string) (bool, error) {
	body, err := json.Marshal(renameRequest{Name: newName})
	if err != nil {
		return false, fmt.Errorf("remoteapi: marshaling rename request: %w", err)
	}

	path := fmt.Sprintf("/workspaces/%s/items/%s", workspace, id)

	resp, err := c.Do(ctx, http.MethodPatch, path, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return true, nil
}

// Delete removes id from the remote.
func (c *Client) Delete(ctx context.Context, workspace model.WorkspaceID, id model.EntryID) (bool, error) {
	path := fmt.Sprintf("/workspaces/%s/items/%s", workspace, id)

	resp, err := c.Do(ctx, http.MethodDelete, path, nil, 0)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return true, nil
}

// SpaceUsage returns the used and available byte counts for workspace.
func (c *Client) SpaceUsage(ctx context.Context, workspace model.WorkspaceID) (used, available int64, err error) {
	path := fmt.Sprintf("/workspaces/%s/space", workspace)

	resp, doErr := c.Do(ctx, http.MethodGet, path, nil, 0)
	if doErr != nil {
		return 0, 0, doErr
	}
	defer resp.Body.Close()

	var body spaceUsageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("remoteapi: decoding space-usage response: %w", err)
	}

	return body.Used, body.Available, nil
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}
