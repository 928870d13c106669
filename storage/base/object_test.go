package base_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/storage/memory"
	"github.com/statewalker/vcs-sub002/storer"
)

// TestResolvePrefix covers spec.md §3's "any operation that accepts an
// id must tolerate either the full 40-character form or a resolvable
// unambiguous prefix."
func TestResolvePrefix(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	idA, err := store.Store(storer.KindBlob, []byte("alpha"))
	require.NoError(t, err)
	_, err = store.Store(storer.KindBlob, []byte("bravo"))
	require.NoError(t, err)

	resolvedA, err := store.ResolvePrefix(idA.String()[:8])
	require.NoError(t, err)
	require.Equal(t, idA, resolvedA)

	// The full 40-character form always resolves directly, with no tier
	// scan, even for an id the store has never seen.
	full, err := store.ResolvePrefix(idA.String())
	require.NoError(t, err)
	require.Equal(t, idA, full)

	// An unknown prefix is NotFound.
	_, err = store.ResolvePrefix("ffffffff")
	require.ErrorIs(t, err, core.NotFound)

	// A non-hex string is rejected the same way as an unknown prefix.
	_, err = store.ResolvePrefix("not-hex!!")
	require.ErrorIs(t, err, core.NotFound)
}

// TestResolvePrefixAmbiguous covers the "erroring on ambiguity" half of
// spec.md §3: a prefix matching more than one object must fail rather
// than silently pick one.
func TestResolvePrefixAmbiguous(t *testing.T) {
	store := memory.NewObjectStore(nil, 0)

	idA, err := store.Store(storer.KindBlob, []byte("alpha"))
	require.NoError(t, err)
	idB, err := store.Store(storer.KindBlob, []byte("bravo35"))
	require.NoError(t, err)

	// The two contents hash to ids that both start with "7e". Find the
	// longest common hex prefix shared by the two ids and assert
	// resolving it fails.
	a, b := idA.String(), idB.String()
	n := 0
	for n < len(a) && a[n] == b[n] {
		n++
	}
	_, err = store.ResolvePrefix(a[:n])
	require.ErrorIs(t, err, core.Conflict)
}
