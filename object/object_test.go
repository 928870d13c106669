package object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storage/memory"
	"github.com/statewalker/vcs-sub002/storer"
)

func blobID(content string) hash.ID { return hash.Of("blob", []byte(content)) }

func TestTreeEncodeDecodeRoundTrip(t *testing.T) {
	tr := object.Tree{Entries: []object.TreeEntry{
		{Name: "b.txt", Mode: filemode.Regular, ID: blobID("b")},
		{Name: "a.txt", Mode: filemode.Regular, ID: blobID("a")},
		{Name: "sub", Mode: filemode.Dir, ID: blobID("sub")},
	}}

	encoded := tr.Encode()
	decoded, err := object.DecodeTree(encoded)
	require.NoError(t, err)

	object.SortEntries(tr.Entries)
	require.Equal(t, tr.Entries, decoded.Entries)
}

func TestTreeCanonicalOrderingDirectoryVsFile(t *testing.T) {
	// A file "foo" sorts before "foo-bar" (it is a prefix of it), but a
	// directory "foo" compares as "foo/" and sorts after it ('/' > '-').
	tr := object.Tree{Entries: []object.TreeEntry{
		{Name: "foo", Mode: filemode.Regular, ID: blobID("file")},
		{Name: "foo-bar", Mode: filemode.Regular, ID: blobID("filebar")},
	}}
	object.SortEntries(tr.Entries)
	require.Equal(t, "foo", tr.Entries[0].Name)
	require.Equal(t, "foo-bar", tr.Entries[1].Name)

	dirTree := object.Tree{Entries: []object.TreeEntry{
		{Name: "foo-bar", Mode: filemode.Regular, ID: blobID("filebar")},
		{Name: "foo", Mode: filemode.Dir, ID: blobID("dir")},
	}}
	object.SortEntries(dirTree.Entries)
	require.Equal(t, "foo-bar", dirTree.Entries[0].Name)
	require.Equal(t, "foo", dirTree.Entries[1].Name)
}

func TestDecodeTreeRejectsNonCanonicalOrder(t *testing.T) {
	// Hand-build a payload with entries out of canonical order.
	bad := append([]byte("100644 b.txt\x00"), blobID("b").Bytes()...)
	bad = append(bad, []byte("100644 a.txt\x00")...)
	bad = append(bad, blobID("a").Bytes()...)

	_, err := object.DecodeTree(bad)
	require.Error(t, err)
	require.Equal(t, core.KindCorrupt, core.KindOf(err))
}

func TestTreeFind(t *testing.T) {
	tr := object.Tree{Entries: []object.TreeEntry{
		{Name: "a.txt", Mode: filemode.Regular, ID: blobID("a")},
	}}
	e, ok := tr.Find("a.txt")
	require.True(t, ok)
	require.Equal(t, blobID("a"), e.ID)

	_, ok = tr.Find("missing")
	require.False(t, ok)
}

func identity(name string) core.Identity {
	return core.Identity{Name: name, Email: name + "@example.com", When: 1700000000, TZOffsetMinutes: -420}
}

func TestCommitEncodeDecodeRoundTrip(t *testing.T) {
	parent := blobID("parent-commit")
	c := object.Commit{
		Tree:      blobID("tree"),
		Parents:   []hash.ID{parent},
		Author:    identity("alice"),
		Committer: identity("bob"),
		ExtraHeaders: []object.ExtraHeader{
			{Key: "gpgsig", Value: "-----BEGIN PGP SIGNATURE-----\nline2\n-----END PGP SIGNATURE-----"},
		},
		Message: "fix bug\n\nlonger body\n",
	}

	decoded, err := object.DecodeCommit(c.Encode())
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}

func TestCommitEncodeDecodeRoundTripNoParents(t *testing.T) {
	c := object.Commit{
		Tree:      blobID("root-tree"),
		Author:    identity("alice"),
		Committer: identity("alice"),
		Message:   "root commit\n",
	}
	decoded, err := object.DecodeCommit(c.Encode())
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}

func TestDecodeCommitRejectsMissingTreeHeader(t *testing.T) {
	_, err := object.DecodeCommit([]byte("author alice <a@example.com> 1 +0000\n"))
	require.Error(t, err)
	require.Equal(t, core.KindCorrupt, core.KindOf(err))
}

func TestTagEncodeDecodeRoundTrip(t *testing.T) {
	tag := object.Tag{
		Object:     blobID("target-commit"),
		ObjectType: storer.KindCommit,
		Name:       "v1.0.0",
		Tagger:     identity("release-bot"),
		Message:    "release v1.0.0\n",
	}
	decoded, err := object.DecodeTag(tag.Encode())
	require.NoError(t, err)
	require.Equal(t, tag, decoded)
}

func TestStoreLoadBlobRoundTrip(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	id, err := object.StoreBlob(store, []byte("hello"))
	require.NoError(t, err)

	size, r, err := object.OpenBlob(store, id)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, int64(5), size)

	buf := make([]byte, size)
	_, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestStoreLoadTreeRoundTrip(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	blobID, err := object.StoreBlob(store, []byte("content"))
	require.NoError(t, err)

	tr := object.Tree{Entries: []object.TreeEntry{{Name: "f", Mode: filemode.Regular, ID: blobID}}}
	id, err := object.StoreTree(store, tr)
	require.NoError(t, err)

	loaded, err := object.LoadTree(store, id)
	require.NoError(t, err)
	require.Equal(t, tr.Entries, loaded.Entries)
}

func TestLoadTreeRejectsWrongKind(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)
	id, err := object.StoreBlob(store, []byte("not a tree"))
	require.NoError(t, err)

	_, err = object.LoadTree(store, id)
	require.Error(t, err)
	require.Equal(t, core.KindCorrupt, core.KindOf(err))
}

func TestIdentityStringRendersGitForm(t *testing.T) {
	id := core.Identity{Name: "Jane Doe", Email: "jane@example.com", When: 1700000123, TZOffsetMinutes: 330}
	require.Equal(t, "Jane Doe <jane@example.com> 1700000123 +0530", id.String())
}
