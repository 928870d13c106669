package hash_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/hash"
)

func TestFromHexRoundTrip(t *testing.T) {
	const hex = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	id, ok := hash.FromHex(hex)
	require.True(t, ok)
	require.Equal(t, hex, id.String())
}

func TestFromHexRejectsWrongLength(t *testing.T) {
	_, ok := hash.FromHex("abc")
	require.False(t, ok)
}

func TestFromHexRejectsNonHex(t *testing.T) {
	_, ok := hash.FromHex("zz39a3ee5e6b4b0d3255bfef95601890afd80709")
	require.False(t, ok)
}

func TestFromBytesRoundTrip(t *testing.T) {
	raw := make([]byte, hash.Size)
	for i := range raw {
		raw[i] = byte(i)
	}
	id, ok := hash.FromBytes(raw)
	require.True(t, ok)
	require.Equal(t, raw, id.Bytes())
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, ok := hash.FromBytes(make([]byte, 19))
	require.False(t, ok)
}

func TestIsZero(t *testing.T) {
	require.True(t, hash.Zero.IsZero())
	id, _ := hash.FromHex("da39a3ee5e6b4b0d3255bfef95601890afd80709")
	require.False(t, id.IsZero())
}

func TestCompareAndSort(t *testing.T) {
	a, _ := hash.FromHex("1000000000000000000000000000000000000000")
	b, _ := hash.FromHex("2000000000000000000000000000000000000000")
	require.Negative(t, a.Compare(b))
	require.Positive(t, b.Compare(a))
	require.Zero(t, a.Compare(a))

	ids := []hash.ID{b, a}
	hash.Sort(ids)
	require.Equal(t, []hash.ID{a, b}, ids)
}

func TestIsHexAcceptsPrefixes(t *testing.T) {
	require.True(t, hash.IsHex("da39"))
	require.True(t, hash.IsHex("DA39a3EE"))
	require.False(t, hash.IsHex(""))
	require.False(t, hash.IsHex("zz"))
	require.False(t, hash.IsHex("a-b"))
}

func TestOfMatchesKnownEmptyBlobID(t *testing.T) {
	// git hash-object -t blob /dev/null
	id := hash.Of("blob", nil)
	require.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", id.String())
}

func TestHasherIncrementalWriteMatchesOf(t *testing.T) {
	payload := []byte("hello world")
	h := hash.NewHasher("blob", int64(len(payload)))
	_, _ = h.Write(payload[:5])
	_, _ = h.Write(payload[5:])
	require.Equal(t, hash.Of("blob", payload), h.Sum())
}
