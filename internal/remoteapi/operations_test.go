package remoteapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalervo/syncdaemon/internal/model"
)

func TestListRootDecodesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workspaces/7/root/children", r.URL.Path)

		json.NewEncoder(w).Encode(listResponse{Items: []itemDTO{
			{ID: 1, Name: "notes.md", Folder: false, Size: 12, UpdatedAt: "2026-01-01T00:00:00Z"},
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	entries, err := c.ListRoot(t.Context(), model.WorkspaceID(7))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.md", entries[0].Name)
	assert.Equal(t, model.KindFile, entries[0].Kind)
}

func TestUploadSkipsWhenDuplicateFound(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(localPath, []byte("hello world"), 0o644))

	var uploadCalled bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(listResponse{Items: []itemDTO{
				{ID: 9, Name: "Report.pdf", Size: int64(len("hello world")), UpdatedAt: "2026-01-01T00:00:00Z"},
			}})
		case r.Method == http.MethodPut:
			uploadCalled = true
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	entry, err := c.Upload(t.Context(), model.WorkspaceID(1), localPath, model.EntryID(5))
	require.NoError(t, err)
	assert.Equal(t, model.EntryID(9), entry.ID)
	assert.False(t, uploadCalled, "duplicate should short-circuit the actual upload")
}

func TestUploadSendsWhenNoDuplicate(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "fresh.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("contents"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(listResponse{Items: []itemDTO{}})
		case http.MethodPut:
			json.NewEncoder(w).Encode(itemDTO{ID: 42, Name: "fresh.txt", Size: 8, UpdatedAt: "2026-01-01T00:00:00Z"})
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	entry, err := c.Upload(t.Context(), model.WorkspaceID(1), localPath, model.EntryID(0))
	require.NoError(t, err)
	assert.Equal(t, model.EntryID(42), entry.ID)
}

func TestCreateFolderReturnsExistingOnConflict(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
		case http.MethodGet:
			json.NewEncoder(w).Encode(listResponse{Items: []itemDTO{
				{ID: 3, Name: "Meeting", Folder: true, UpdatedAt: "2026-01-01T00:00:00Z"},
			}})
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	entry, err := c.CreateFolder(t.Context(), model.WorkspaceID(1), "Meeting", model.EntryID(0))
	require.NoError(t, err)
	assert.Equal(t, model.EntryID(3), entry.ID)
	assert.True(t, entry.IsFolder())
}

func TestDownloadWritesFileAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("downloaded content"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	destDir := t.TempDir()

	entry := model.RemoteEntry{ID: 1, Name: "file.txt", Kind: model.KindFile}

	path, err := c.Download(t.Context(), model.WorkspaceID(1), entry, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "file.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "downloaded content", string(data))

	_, err = os.Stat(path + ".partial")
	assert.True(t, os.IsNotExist(err), "partial file should be renamed away")
}

func TestSanitizeFileNameReplacesIllegalChars(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeFileName("a/b:c"))
}

func TestFindDuplicateMatchesMangledEncoding(t *testing.T) {
	siblings := []model.RemoteEntry{
		{Name: "caf_.txt", Size: 10},
	}

	entry, ok := findDuplicate(siblings, "café.txt", 10)
	require.True(t, ok)
	assert.Equal(t, "caf_.txt", entry.Name)
}
