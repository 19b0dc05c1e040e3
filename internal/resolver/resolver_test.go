package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/resolver"
)

func TestResolveTopLevelIsRoot(t *testing.T) {
	tree := model.NewRemoteTreeMap()

	got := resolver.Resolve(tree, "notes.md")
	assert.True(t, got.IsRoot())
}

func TestResolveKnownFolderCaseInsensitive(t *testing.T) {
	tree := model.NewRemoteTreeMap()
	tree.Put("Meeting", model.RemoteEntry{ID: 3, Kind: model.KindFolder})

	got := resolver.Resolve(tree, "meeting/notes.md")
	assert.True(t, got.IsResolved())
	assert.Equal(t, model.EntryID(3), got.ID)
}

func TestResolveUnknownFolderIsUnresolvedNotRoot(t *testing.T) {
	tree := model.NewRemoteTreeMap()

	got := resolver.Resolve(tree, "Meeting/notes.md")
	assert.True(t, got.IsUnresolved())
	assert.False(t, got.IsRoot())
}

func TestResolveFileNamedLikeDirNeverMatches(t *testing.T) {
	tree := model.NewRemoteTreeMap()
	tree.Put("Meeting", model.RemoteEntry{ID: 9, Kind: model.KindFile})

	got := resolver.Resolve(tree, "Meeting/notes.md")
	assert.True(t, got.IsUnresolved())
}

func TestResolveNFCNormalizesBeforeLookup(t *testing.T) {
	tree := model.NewRemoteTreeMap()
	// NFD-decomposed "é" (e + combining acute).
	tree.Put("café", model.RemoteEntry{ID: 5, Kind: model.KindFolder})

	got := resolver.Resolve(tree, "café/notes.md")
	assert.True(t, got.IsResolved())
	assert.Equal(t, model.EntryID(5), got.ID)
}

func TestRelativePathJoinsUnderParent(t *testing.T) {
	assert.Equal(t, "Meeting/notes.md", resolver.RelativePath("Meeting", "notes.md"))
	assert.Equal(t, "notes.md", resolver.RelativePath("", "notes.md"))
}
