package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/merge"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storage/memory"
	"github.com/statewalker/vcs-sub002/storer"
)

func mustStoreBlob(t *testing.T, store storer.ObjectStore, content string) hash.ID {
	t.Helper()
	id, err := object.StoreBlob(store, []byte(content))
	require.NoError(t, err)
	return id
}

func mustStoreTree(t *testing.T, store storer.ObjectStore, entries ...object.TreeEntry) hash.ID {
	t.Helper()
	tr := object.Tree{Entries: entries}
	object.SortEntries(tr.Entries)
	id, err := object.StoreTree(store, tr)
	require.NoError(t, err)
	return id
}

func TestStageEntriesClassification(t *testing.T) {
	require.Equal(t, merge.BothDeleted, merge.StageEntries(true, false, false))
	require.Equal(t, merge.AddedByUs, merge.StageEntries(false, true, false))
	require.Equal(t, merge.DeletedByUs, merge.StageEntries(true, false, true))
	require.Equal(t, merge.AddedByThem, merge.StageEntries(false, false, true))
	require.Equal(t, merge.DeletedByThem, merge.StageEntries(true, true, false))
	require.Equal(t, merge.BothAdded, merge.StageEntries(false, true, true))
	require.Equal(t, merge.BothModified, merge.StageEntries(true, true, true))
	require.Equal(t, merge.StageNone, merge.StageEntries(false, false, false))
}

func TestMergeOneSideOnlyChangesFastPath(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	baseBlob := mustStoreBlob(t, store, "base content")
	theirsBlob := mustStoreBlob(t, store, "their edit")

	baseTree := mustStoreTree(t, store, object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, ID: baseBlob})
	oursTree := baseTree // ours didn't touch anything
	theirsTree := mustStoreTree(t, store, object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, ID: theirsBlob})

	res, err := merge.Merge(store, baseTree, oursTree, theirsTree, merge.TreeOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Conflicts)

	merged, err := object.LoadTree(store, res.Tree)
	require.NoError(t, err)
	e, ok := merged.Find("a.txt")
	require.True(t, ok)
	require.Equal(t, theirsBlob, e.ID)
}

func TestMergeBothSidesAddedIdenticalFile(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	newBlob := mustStoreBlob(t, store, "new file")
	baseTree := mustStoreTree(t, store) // empty

	oursTree := mustStoreTree(t, store, object.TreeEntry{Name: "new.txt", Mode: filemode.Regular, ID: newBlob})
	theirsTree := mustStoreTree(t, store, object.TreeEntry{Name: "new.txt", Mode: filemode.Regular, ID: newBlob})

	res, err := merge.Merge(store, baseTree, oursTree, theirsTree, merge.TreeOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Conflicts)

	merged, err := object.LoadTree(store, res.Tree)
	require.NoError(t, err)
	e, ok := merged.Find("new.txt")
	require.True(t, ok)
	require.Equal(t, newBlob, e.ID)
}

func TestMergeConflictingEditsProduceBothModifiedConflict(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	baseBlob := mustStoreBlob(t, store, "line one\nline two\nline three\n")
	oursBlob := mustStoreBlob(t, store, "line one changed by us\nline two\nline three\n")
	theirsBlob := mustStoreBlob(t, store, "line one changed by them\nline two\nline three\n")

	baseTree := mustStoreTree(t, store, object.TreeEntry{Name: "f.txt", Mode: filemode.Regular, ID: baseBlob})
	oursTree := mustStoreTree(t, store, object.TreeEntry{Name: "f.txt", Mode: filemode.Regular, ID: oursBlob})
	theirsTree := mustStoreTree(t, store, object.TreeEntry{Name: "f.txt", Mode: filemode.Regular, ID: theirsBlob})

	res, err := merge.Merge(store, baseTree, oursTree, theirsTree, merge.TreeOptions{})
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	require.Equal(t, "f.txt", c.Path)
	require.Equal(t, merge.BothModified, c.State)
	require.True(t, c.TextConflict)
	require.NotNil(t, c.Base)
	require.NotNil(t, c.Ours)
	require.NotNil(t, c.Theirs)
}

func TestConflictIndexEntriesEmitsPresentSidesOnly(t *testing.T) {
	ours := object.TreeEntry{Mode: filemode.Regular, ID: hash.Of("blob", []byte("ours"))}
	c := merge.Conflict{Path: "added.txt", State: merge.AddedByUs, Ours: &ours}
	entries := c.IndexEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "added.txt", entries[0].Name)
}

func TestMergeBothDeletedRemovesEntry(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	baseBlob := mustStoreBlob(t, store, "gone")
	baseTree := mustStoreTree(t, store, object.TreeEntry{Name: "gone.txt", Mode: filemode.Regular, ID: baseBlob})
	oursTree := mustStoreTree(t, store) // deleted
	theirsTree := mustStoreTree(t, store) // deleted

	res, err := merge.Merge(store, baseTree, oursTree, theirsTree, merge.TreeOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Conflicts)

	merged, err := object.LoadTree(store, res.Tree)
	require.NoError(t, err)
	_, ok := merged.Find("gone.txt")
	require.False(t, ok)
}
