package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/index"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storage/memory"
)

func TestSetGetRemoveEntry(t *testing.T) {
	idx := index.New()
	e := index.Entry{Name: "a.txt", Mode: filemode.Regular, ID: hash.Of("blob", []byte("a"))}
	idx.SetEntry(e)

	got, ok := idx.GetEntry("a.txt", index.StageMerged)
	require.True(t, ok)
	require.Equal(t, e, got)

	idx.RemoveEntry("a.txt")
	_, ok = idx.GetEntry("a.txt", index.StageMerged)
	require.False(t, ok)
}

func TestEntriesIteratorOrdersByPathThenStage(t *testing.T) {
	idx := index.New()
	idx.SetEntry(index.Entry{Name: "b.txt", Stage: index.StageMerged, ID: hash.Of("blob", []byte("b"))})
	idx.SetEntry(index.Entry{Name: "a.txt", Stage: index.StageTheirs, ID: hash.Of("blob", []byte("a3"))})
	idx.SetEntry(index.Entry{Name: "a.txt", Stage: index.StageBase, ID: hash.Of("blob", []byte("a1"))})

	it := idx.Entries()
	var order []string
	for it.Next() {
		e := it.Entry()
		order = append(order, e.Name)
	}
	require.Equal(t, []string{"a.txt", "a.txt", "b.txt"}, order)
}

func TestHasConflictsAndGetConflictedPaths(t *testing.T) {
	idx := index.New()
	idx.SetEntry(index.Entry{Name: "clean.txt", Stage: index.StageMerged})

	ok, err := idx.HasConflicts()
	require.NoError(t, err)
	require.False(t, ok)

	idx.SetEntry(index.Entry{Name: "conflicted.txt", Stage: index.StageOurs})
	idx.SetEntry(index.Entry{Name: "conflicted.txt", Stage: index.StageTheirs})

	ok, err = idx.HasConflicts()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"conflicted.txt"}, idx.GetConflictedPaths())
}

func TestResolveConflictClearsAllStages(t *testing.T) {
	idx := index.New()
	idx.SetEntry(index.Entry{Name: "f.txt", Stage: index.StageBase})
	idx.SetEntry(index.Entry{Name: "f.txt", Stage: index.StageOurs})
	idx.SetEntry(index.Entry{Name: "f.txt", Stage: index.StageTheirs})

	resolved := index.Entry{Mode: filemode.Regular, ID: hash.Of("blob", []byte("resolved"))}
	require.NoError(t, idx.ResolveConflict("f.txt", resolved))

	ok, err := idx.HasConflicts()
	require.NoError(t, err)
	require.False(t, ok)

	got, ok := idx.GetEntry("f.txt", index.StageMerged)
	require.True(t, ok)
	require.Equal(t, resolved.ID, got.ID)
}

func TestWriteTreeFailsWithUnresolvedConflicts(t *testing.T) {
	idx := index.New()
	idx.SetEntry(index.Entry{Name: "f.txt", Stage: index.StageOurs})

	store := memory.NewObjectStore(nil, 0)
	_, err := idx.WriteTree(store)
	require.Error(t, err)
	require.Equal(t, core.KindUnmerged, core.KindOf(err))
}

func TestWriteTreeBuildsNestedDirectories(t *testing.T) {
	idx := index.New()
	store := memory.NewObjectStore(nil, 0)

	rootBlob, err := object.StoreBlob(store, []byte("root file"))
	require.NoError(t, err)
	nestedBlob, err := object.StoreBlob(store, []byte("nested file"))
	require.NoError(t, err)

	idx.SetEntry(index.Entry{Name: "root.txt", Mode: filemode.Regular, ID: rootBlob, Stage: index.StageMerged})
	idx.SetEntry(index.Entry{Name: "dir/sub/nested.txt", Mode: filemode.Regular, ID: nestedBlob, Stage: index.StageMerged})

	treeID, err := idx.WriteTree(store)
	require.NoError(t, err)

	root, err := object.LoadTree(store, treeID)
	require.NoError(t, err)
	rootEntry, ok := root.Find("root.txt")
	require.True(t, ok)
	require.Equal(t, rootBlob, rootEntry.ID)

	dirEntry, ok := root.Find("dir")
	require.True(t, ok)
	require.True(t, dirEntry.Mode.IsDir())

	subTree, err := object.LoadTree(store, dirEntry.ID)
	require.NoError(t, err)
	subEntry, ok := subTree.Find("sub")
	require.True(t, ok)

	leafTree, err := object.LoadTree(store, subEntry.ID)
	require.NoError(t, err)
	leafEntry, ok := leafTree.Find("nested.txt")
	require.True(t, ok)
	require.Equal(t, nestedBlob, leafEntry.ID)
}

func TestReadTreeFlattensIntoStageZero(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	blobID, err := object.StoreBlob(store, []byte("content"))
	require.NoError(t, err)

	tr := object.Tree{Entries: []object.TreeEntry{{Name: "f.txt", Mode: filemode.Regular, ID: blobID}}}
	treeID, err := object.StoreTree(store, tr)
	require.NoError(t, err)

	idx := index.New()
	idx.SetEntry(index.Entry{Name: "stale.txt", Stage: index.StageMerged})
	idx.SetEntry(index.Entry{Name: "conflict.txt", Stage: index.StageOurs})

	require.NoError(t, idx.ReadTree(store, treeID, true))

	_, ok := idx.GetEntry("stale.txt", index.StageMerged)
	require.False(t, ok, "clear=true must drop previous stage-0 entries")
	_, ok = idx.GetEntry("conflict.txt", index.StageOurs)
	require.False(t, ok, "clear=true must drop unresolved conflict stages")

	got, ok := idx.GetEntry("f.txt", index.StageMerged)
	require.True(t, ok)
	require.Equal(t, blobID, got.ID)
}

func TestReadTreeRoundTripsThroughWriteTree(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	blobID, err := object.StoreBlob(store, []byte("content"))
	require.NoError(t, err)
	tr := object.Tree{Entries: []object.TreeEntry{{Name: "dir/f.txt", Mode: filemode.Regular, ID: blobID}}}
	object.SortEntries(tr.Entries)

	idx := index.New()
	idx.SetEntry(index.Entry{Name: "dir/f.txt", Mode: filemode.Regular, ID: blobID, Stage: index.StageMerged})
	treeID, err := idx.WriteTree(store)
	require.NoError(t, err)

	idx2 := index.New()
	require.NoError(t, idx2.ReadTree(store, treeID, false))
	got, ok := idx2.GetEntry("dir/f.txt", index.StageMerged)
	require.True(t, ok)
	require.Equal(t, blobID, got.ID)
}
