package idxfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/format/idxfile"
	"github.com/statewalker/vcs-sub002/hash"
)

func idFor(b byte) hash.ID {
	var raw [hash.Size]byte
	raw[0] = b
	raw[hash.Size-1] = b
	got, _ := hash.FromBytes(raw[:])
	return got
}

func TestBuildSortsEntriesByID(t *testing.T) {
	a, b, c := idFor(1), idFor(2), idFor(3)
	idx := idxfile.Build(hash.ID{}, []idxfile.Entry{
		{ID: c, Offset: 300},
		{ID: a, Offset: 100},
		{ID: b, Offset: 200},
	})
	require.Equal(t, a, idx.Entries[0].ID)
	require.Equal(t, b, idx.Entries[1].ID)
	require.Equal(t, c, idx.Entries[2].ID)
}

func TestFindOffsetAndCRC(t *testing.T) {
	a := idFor(1)
	idx := idxfile.Build(hash.ID{}, []idxfile.Entry{{ID: a, Offset: 42, CRC32: 0xdeadbeef}})

	off, err := idx.FindOffset(a)
	require.NoError(t, err)
	require.Equal(t, int64(42), off)

	crc, err := idx.FindCRC(a)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), crc)
}

func TestFindOffsetMissingReturnsNotFound(t *testing.T) {
	idx := idxfile.Build(hash.ID{}, nil)
	_, err := idx.FindOffset(idFor(9))
	require.Error(t, err)
}

func TestContains(t *testing.T) {
	a, b := idFor(1), idFor(2)
	idx := idxfile.Build(hash.ID{}, []idxfile.Entry{{ID: a, Offset: 1}})
	require.True(t, idx.Contains(a))
	require.False(t, idx.Contains(b))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entries := []idxfile.Entry{
		{ID: idFor(1), Offset: 12, CRC32: 111},
		{ID: idFor(2), Offset: 555, CRC32: 222},
		{ID: idFor(3), Offset: 99999, CRC32: 333},
	}
	packChecksum := idFor(0xaa)
	idx := idxfile.Build(packChecksum, entries)

	var buf bytes.Buffer
	_, err := idxfile.Encode(&buf, idx)
	require.NoError(t, err)

	decoded, err := idxfile.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.PackChecksum, decoded.PackChecksum)
	require.Equal(t, idx.Entries, decoded.Entries)
}
