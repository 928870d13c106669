package gc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/format/packfile"
	"github.com/statewalker/vcs-sub002/gc"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/refstore"
	"github.com/statewalker/vcs-sub002/storage/memory"
	"github.com/statewalker/vcs-sub002/storer"
)

func identity() core.Identity {
	return core.Identity{Name: "gopher", Email: "gopher@example.com", When: 1700000000, TZOffsetMinutes: 0}
}

func mustBlob(t *testing.T, store storer.ObjectStore, content string) hash.ID {
	t.Helper()
	id, err := object.StoreBlob(store, []byte(content))
	require.NoError(t, err)
	return id
}

func mustTree(t *testing.T, store storer.ObjectStore, entries ...object.TreeEntry) hash.ID {
	t.Helper()
	tr := object.Tree{Entries: entries}
	object.SortEntries(tr.Entries)
	id, err := object.StoreTree(store, tr)
	require.NoError(t, err)
	return id
}

func mustCommit(t *testing.T, store storer.ObjectStore, tree hash.ID, parents ...hash.ID) hash.ID {
	t.Helper()
	c := object.Commit{
		Tree:      tree,
		Parents:   parents,
		Author:    identity(),
		Committer: identity(),
		Message:   "test commit\n",
	}
	id, err := object.StoreCommit(store, c)
	require.NoError(t, err)
	return id
}

func TestRunPrunesUnreachableObjects(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	keptBlob := mustBlob(t, store, "kept")
	keptTree := mustTree(t, store, object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, ID: keptBlob})
	keptCommit := mustCommit(t, store, keptTree)

	danglingBlob := mustBlob(t, store, "dangling")
	danglingTree := mustTree(t, store, object.TreeEntry{Name: "b.txt", Mode: filemode.Regular, ID: danglingBlob})
	mustCommit(t, store, danglingTree) // never referenced by a ref

	refs := refstore.New(memory.NewRefBackend())
	require.NoError(t, refs.Set("refs/heads/main", keptCommit))

	stats, err := gc.Run(store, refs, gc.Options{})
	require.NoError(t, err)

	require.Equal(t, 3, stats.ReachableObjects) // commit, tree, blob
	require.Equal(t, 3, stats.PrunedObjects)     // dangling commit, tree, blob

	ok, err := store.Has(keptCommit)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Has(danglingBlob)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunDryRunLeavesObjectsInPlace(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	keptBlob := mustBlob(t, store, "kept")
	keptTree := mustTree(t, store, object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, ID: keptBlob})
	keptCommit := mustCommit(t, store, keptTree)

	orphanBlob := mustBlob(t, store, "orphan")

	refs := refstore.New(memory.NewRefBackend())
	require.NoError(t, refs.Set("refs/heads/main", keptCommit))

	stats, err := gc.Run(store, refs, gc.Options{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, stats.PrunedObjects)
	require.Zero(t, stats.BytesFreed) // dry run never measures freed bytes

	ok, err := store.Has(orphanBlob)
	require.NoError(t, err)
	require.True(t, ok, "dry run must not delete anything")
}

func TestRunIgnoresUnresolvableRefs(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	refs := refstore.New(memory.NewRefBackend())
	require.NoError(t, refs.SetSymbolic("HEAD", "refs/heads/missing"))

	stats, err := gc.Run(store, refs, gc.Options{})
	require.NoError(t, err)
	require.Equal(t, 0, stats.ReachableObjects)
}

func TestRunCompactRequiresPackWriter(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	refs := refstore.New(memory.NewRefBackend())

	_, err := gc.Run(store, refs, gc.Options{Compact: true})
	require.Error(t, err)
	require.Equal(t, core.KindPrecondition, core.KindOf(err))
}

func TestRunCompactInvokesPackWriter(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	keptBlob := mustBlob(t, store, "kept")
	keptTree := mustTree(t, store, object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, ID: keptBlob})
	keptCommit := mustCommit(t, store, keptTree)

	refs := refstore.New(memory.NewRefBackend())
	require.NoError(t, refs.Set("refs/heads/main", keptCommit))

	var packed []packfile.Source
	writer := func(objs []packfile.Source) (string, error) {
		packed = objs
		return "pack-test", nil
	}

	stats, err := gc.Run(store, refs, gc.Options{Compact: true, Aggressive: true, PackWriter: writer})
	require.NoError(t, err)
	require.NotNil(t, stats.Compact)
	require.Equal(t, "pack-test", stats.Compact.PackName)
	require.Equal(t, 3, stats.Compact.ObjectsPacked)
	require.Len(t, packed, 3)
}
