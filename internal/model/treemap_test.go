package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalervo/syncdaemon/internal/model"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "Docs/a.txt", model.NormalizePath(`Docs\a.txt`))
	assert.Equal(t, "Docs/a.txt", model.NormalizePath("/Docs/a.txt/"))
	assert.Equal(t, "", model.NormalizePath(""))
}

func TestDirName(t *testing.T) {
	assert.Equal(t, "", model.DirName("a.txt"))
	assert.Equal(t, "Docs", model.DirName("Docs/a.txt"))
	assert.Equal(t, "Docs/Sub", model.DirName("Docs/Sub/a.txt"))
}

func TestRemoteTreeMapCaseInsensitive(t *testing.T) {
	m := model.NewRemoteTreeMap()
	entry := model.RemoteEntry{ID: 10, Name: "Docs", Kind: model.KindFolder}

	m.Put("Docs", entry)

	got, ok := m.Get("docs")
	require.True(t, ok)
	assert.Equal(t, model.EntryID(10), got.ID)

	_, ok = m.Get("Missing")
	assert.False(t, ok)

	assert.Equal(t, 1, m.Len())

	m.Delete("DOCS")
	assert.Equal(t, 0, m.Len())
}

func TestRemoteTreeMapSnapshotPreservesDisplayCase(t *testing.T) {
	m := model.NewRemoteTreeMap()
	m.Put("Docs/Report.PDF", model.RemoteEntry{ID: 1})

	snap := m.Snapshot()
	_, ok := snap["Docs/Report.PDF"]
	assert.True(t, ok)
}
