package status_test

import (
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/index"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/status"
	"github.com/statewalker/vcs-sub002/storage/memory"
	"github.com/statewalker/vcs-sub002/storer"
	"github.com/statewalker/vcs-sub002/worktree"
)

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

func writeWorktreeFile(t *testing.T, wt worktree.Worktree, path, content string) {
	t.Helper()
	require.NoError(t, wt.WriteContent(path, strings.NewReader(content)))
}

func TestComputeDetectsAllSets(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	unchangedBlob := mustBlob(t, store, "unchanged")
	changedBlobOld := mustBlob(t, store, "old content")
	changedBlobStaged := mustBlob(t, store, "staged content")
	removedBlob := mustBlob(t, store, "gone")
	headTree := mustTree(t, store,
		object.TreeEntry{Name: "unchanged.txt", Mode: filemode.Regular, ID: unchangedBlob},
		object.TreeEntry{Name: "changed.txt", Mode: filemode.Regular, ID: changedBlobOld},
		object.TreeEntry{Name: "removed.txt", Mode: filemode.Regular, ID: removedBlob},
		object.TreeEntry{Name: "missing.txt", Mode: filemode.Regular, ID: unchangedBlob},
	)

	idx := index.New()
	idx.SetEntry(index.Entry{Name: "unchanged.txt", Mode: filemode.Regular, ID: unchangedBlob, Stage: index.StageMerged})
	idx.SetEntry(index.Entry{Name: "changed.txt", Mode: filemode.Regular, ID: changedBlobStaged, Stage: index.StageMerged})
	idx.SetEntry(index.Entry{Name: "missing.txt", Mode: filemode.Regular, ID: unchangedBlob, Stage: index.StageMerged})
	idx.SetEntry(index.Entry{Name: "added.txt", Mode: filemode.Regular, ID: unchangedBlob, Stage: index.StageMerged})

	fs := memfs.New()
	wt := worktree.New(fs, nil)
	writeWorktreeFile(t, wt, "unchanged.txt", "unchanged")
	writeWorktreeFile(t, wt, "changed.txt", "new content")
	writeWorktreeFile(t, wt, "added.txt", "unchanged")
	writeWorktreeFile(t, wt, "untracked.txt", "surprise")
	// missing.txt deliberately not written

	st, err := status.Compute(store, headTree, idx, wt, status.Options{})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"added.txt"}, st.Added)
	require.ElementsMatch(t, []string{"changed.txt"}, st.Changed)
	require.ElementsMatch(t, []string{"removed.txt"}, st.Removed)
	require.ElementsMatch(t, []string{"missing.txt"}, st.Missing)
	require.ElementsMatch(t, []string{"changed.txt"}, st.Modified)
	require.ElementsMatch(t, []string{"untracked.txt"}, st.Untracked)
	require.Empty(t, st.Conflicting)
}

func TestComputeConflictingStageStates(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	baseBlob := mustBlob(t, store, "base")
	oursBlob := mustBlob(t, store, "ours")
	theirsBlob := mustBlob(t, store, "theirs")

	idx := index.New()
	idx.SetEntry(index.Entry{Name: "conflict.txt", Mode: filemode.Regular, ID: baseBlob, Stage: index.StageBase})
	idx.SetEntry(index.Entry{Name: "conflict.txt", Mode: filemode.Regular, ID: oursBlob, Stage: index.StageOurs})
	idx.SetEntry(index.Entry{Name: "conflict.txt", Mode: filemode.Regular, ID: theirsBlob, Stage: index.StageTheirs})

	fs := memfs.New()
	wt := worktree.New(fs, nil)
	writeWorktreeFile(t, wt, "conflict.txt", "ours")

	st, err := status.Compute(store, hash.ID{}, idx, wt, status.Options{})
	require.NoError(t, err)

	require.Len(t, st.Conflicting, 1)
	require.Contains(t, st.Conflicting, "conflict.txt")
	require.Empty(t, st.Added, "conflicted paths have no stage-0 entry and shouldn't appear as added")
}

func TestComputeDetectsRenames(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	movedBlob := mustBlob(t, store, "same content, new home")
	headTree := mustTree(t, store, object.TreeEntry{Name: "old/path.txt", Mode: filemode.Regular, ID: movedBlob})

	idx := index.New()
	// nothing staged: both sides look like plain remove+add

	fs := memfs.New()
	wt := worktree.New(fs, nil)
	writeWorktreeFile(t, wt, "new/path.txt", "same content, new home")

	st, err := status.Compute(store, headTree, idx, wt, status.Options{})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"old/path.txt"}, st.Removed)
	require.ElementsMatch(t, []string{"new/path.txt"}, st.Untracked)
	require.Equal(t, []status.RenamePair{{From: "old/path.txt", To: "new/path.txt"}}, st.RenamesFollowed)
}

func TestComputeBareRepositorySkipsWorktreeSets(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	idx := index.New()

	st, err := status.Compute(store, hash.ID{}, idx, worktree.Null(), status.Options{})
	require.NoError(t, err)
	require.Empty(t, st.Missing)
	require.Empty(t, st.Modified)
	require.Empty(t, st.Untracked)
	require.Empty(t, st.UntrackedFolders)
}
