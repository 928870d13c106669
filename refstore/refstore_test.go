package refstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/refstore"
	"github.com/statewalker/vcs-sub002/storage/memory"
)

func id(s byte) hash.ID {
	var raw [hash.Size]byte
	raw[0] = s
	got, _ := hash.FromBytes(raw[:])
	return got
}

func TestSetAndGet(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	require.NoError(t, s.Set("refs/heads/main", id(1)))

	r, err := s.Get("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, id(1), r.ID)
	require.False(t, r.IsSymbolic())
}

func TestResolveFollowsSymbolicChain(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	require.NoError(t, s.Set("refs/heads/main", id(1)))
	require.NoError(t, s.SetSymbolic("HEAD", "refs/heads/main"))

	resolved, err := s.Resolve("HEAD")
	require.NoError(t, err)
	require.Equal(t, id(1), resolved)
}

func TestResolveDetectsLoop(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	require.NoError(t, s.SetSymbolic("refs/a", "refs/b"))
	require.NoError(t, s.SetSymbolic("refs/b", "refs/a"))

	_, err := s.Resolve("refs/a")
	require.Error(t, err)
	require.Equal(t, core.KindProtocol, core.KindOf(err))
}

func TestCompareAndSwapRejectsStaleExpectation(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	require.NoError(t, s.Set("refs/heads/main", id(1)))

	stale := id(99)
	err := s.CompareAndSwap("refs/heads/main", &stale, refstore.Ref{Name: "refs/heads/main", ID: id(2)})
	require.Error(t, err)
	require.Equal(t, core.KindConflict, core.KindOf(err))

	current := id(1)
	require.NoError(t, s.CompareAndSwap("refs/heads/main", &current, refstore.Ref{Name: "refs/heads/main", ID: id(2)}))

	r, err := s.Get("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, id(2), r.ID)
}

func TestCompareAndSwapCreateRequiresNilExpected(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	err := s.CompareAndSwap("refs/heads/new", nil, refstore.Ref{Name: "refs/heads/new", ID: id(5)})
	require.NoError(t, err)

	err = s.CompareAndSwap("refs/heads/new", nil, refstore.Ref{Name: "refs/heads/new", ID: id(6)})
	require.Error(t, err)
	require.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestReflogRecordsSuccessfulUpdates(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	require.NoError(t, s.Set("refs/heads/main", id(1)))
	current := id(1)
	require.NoError(t, s.CompareAndSwap("refs/heads/main", &current, refstore.Ref{Name: "refs/heads/main", ID: id(2)}))

	entries, err := s.Reflog("refs/heads/main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, id(1), entries[0].New)
	require.Equal(t, id(1), entries[1].Old)
	require.Equal(t, id(2), entries[1].New)
}

func TestListReturnsPrefixedNames(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	require.NoError(t, s.Set("refs/heads/main", id(1)))
	require.NoError(t, s.Set("refs/heads/feature", id(2)))
	require.NoError(t, s.Set("refs/tags/v1", id(3)))

	names, err := s.List("refs/heads/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"refs/heads/main", "refs/heads/feature"}, names)
}

func TestRemoveDeletesRef(t *testing.T) {
	s := refstore.New(memory.NewRefBackend())
	require.NoError(t, s.Set("refs/heads/main", id(1)))
	require.NoError(t, s.Remove("refs/heads/main"))

	_, err := s.Get("refs/heads/main")
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestIsSpecial(t *testing.T) {
	require.True(t, refstore.IsSpecial("HEAD"))
	require.True(t, refstore.IsSpecial("MERGE_HEAD"))
	require.False(t, refstore.IsSpecial("refs/heads/main"))
}
