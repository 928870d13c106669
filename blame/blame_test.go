package blame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/blame"
	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storage/memory"
	"github.com/statewalker/vcs-sub002/storer"
)

func author(name string, when int64) core.Identity {
	return core.Identity{Name: name, Email: name + "@example.com", When: when}
}

func commitWithFile(t *testing.T, store storer.ObjectStore, when int64, author core.Identity, path, content string, parents ...hash.ID) hash.ID {
	t.Helper()
	blobID, err := object.StoreBlob(store, []byte(content))
	require.NoError(t, err)
	treeID, err := object.StoreTree(store, object.Tree{Entries: []object.TreeEntry{{Name: path, Mode: filemode.Regular, ID: blobID}}})
	require.NoError(t, err)
	c := object.Commit{Tree: treeID, Parents: parents, Author: author, Committer: author, Message: "c\n"}
	id, err := object.StoreCommit(store, c)
	require.NoError(t, err)
	return id
}

func TestBlameSingleCommitAttributesEveryLine(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	a := author("alice", 100)
	c1 := commitWithFile(t, store, 100, a, "f.txt", "one\ntwo\nthree\n")

	entries, err := blame.Run(store, c1, "f.txt", blame.Options{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 1, entries[0].ResultStart)
	require.Equal(t, 3, entries[0].ResultEnd)
	require.Equal(t, c1, entries[0].SourceCommit)
}

func TestBlameTrailingLineDeleteAttributesRemainderToParent(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	a := author("alice", 100)
	b := author("bob", 200)

	c1 := commitWithFile(t, store, 100, a, "f.txt", "one\ntwo\nthree\n")
	c2 := commitWithFile(t, store, 200, b, "f.txt", "one\ntwo\n", c1) // deleted trailing line

	entries, err := blame.Run(store, c2, "f.txt", blame.Options{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, c1, entries[0].SourceCommit)
	require.Equal(t, 1, entries[0].ResultStart)
	require.Equal(t, 2, entries[0].ResultEnd)
}

func TestBlameInsertionAttributesNewLineToChildCommit(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	a := author("alice", 100)
	b := author("bob", 200)

	c1 := commitWithFile(t, store, 100, a, "f.txt", "one\ntwo\n")
	c2 := commitWithFile(t, store, 200, b, "f.txt", "one\ninserted\ntwo\n", c1)

	entries, err := blame.Run(store, c2, "f.txt", blame.Options{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, c1, entries[0].SourceCommit) // "one"
	require.Equal(t, 1, entries[0].ResultStart)
	require.Equal(t, 1, entries[0].ResultEnd)

	require.Equal(t, c2, entries[1].SourceCommit) // "inserted"
	require.Equal(t, 2, entries[1].ResultStart)
	require.Equal(t, 2, entries[1].ResultEnd)

	require.Equal(t, c1, entries[2].SourceCommit) // "two"
	require.Equal(t, 3, entries[2].ResultStart)
	require.Equal(t, 3, entries[2].ResultEnd)
}

func TestBlameFollowsRenameWhenEnabled(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	a := author("alice", 100)
	b := author("bob", 200)

	oldBlob, err := object.StoreBlob(store, []byte("alpha\nbeta\ngamma\n"))
	require.NoError(t, err)
	oldTree, err := object.StoreTree(store, object.Tree{Entries: []object.TreeEntry{{Name: "old.txt", Mode: filemode.Regular, ID: oldBlob}}})
	require.NoError(t, err)
	c1, err := object.StoreCommit(store, object.Commit{Tree: oldTree, Author: a, Committer: a, Message: "c1\n"})
	require.NoError(t, err)

	newTree, err := object.StoreTree(store, object.Tree{Entries: []object.TreeEntry{{Name: "new.txt", Mode: filemode.Regular, ID: oldBlob}}})
	require.NoError(t, err)
	c2, err := object.StoreCommit(store, object.Commit{Tree: newTree, Parents: []hash.ID{c1}, Author: b, Committer: b, Message: "rename\n"})
	require.NoError(t, err)

	entries, err := blame.Run(store, c2, "new.txt", blame.Options{FollowRenames: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, c1, entries[0].SourceCommit)
	require.Equal(t, "old.txt", entries[0].SourcePath)
}

func TestBlameWithoutRenameFollowingAttributesToCommitThatMovedFile(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	a := author("alice", 100)
	b := author("bob", 200)

	oldBlob, err := object.StoreBlob(store, []byte("alpha\nbeta\ngamma\n"))
	require.NoError(t, err)
	oldTree, err := object.StoreTree(store, object.Tree{Entries: []object.TreeEntry{{Name: "old.txt", Mode: filemode.Regular, ID: oldBlob}}})
	require.NoError(t, err)
	c1, err := object.StoreCommit(store, object.Commit{Tree: oldTree, Author: a, Committer: a, Message: "c1\n"})
	require.NoError(t, err)

	newTree, err := object.StoreTree(store, object.Tree{Entries: []object.TreeEntry{{Name: "new.txt", Mode: filemode.Regular, ID: oldBlob}}})
	require.NoError(t, err)
	c2, err := object.StoreCommit(store, object.Commit{Tree: newTree, Parents: []hash.ID{c1}, Author: b, Committer: b, Message: "rename\n"})
	require.NoError(t, err)

	entries, err := blame.Run(store, c2, "new.txt", blame.Options{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, c2, entries[0].SourceCommit, "without FollowRenames the whole file attributes to the commit that introduced the new path")
}

func TestBlameMissingPathReturnsNotFound(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	a := author("alice", 100)
	c1 := commitWithFile(t, store, 100, a, "f.txt", "content\n")

	_, err := blame.Run(store, c1, "missing.txt", blame.Options{})
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.KindOf(err))
}
