package idxfile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
)

// Decode parses a v2 .idx file from r. It validates the magic and
// version and refuses (core.Corrupt) anything else, per spec.md's "pack
// v3 is not required; callers should detect and refuse unknown
// versions".
func Decode(r io.Reader) (*Index, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated idx header", err)
	}
	if magic != Magic {
		return nil, legacyV1Unsupported()
	}

	var verBuf [4]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated idx header", err)
	}
	version := be.Uint32(verBuf[:])
	if version != Version2 {
		return nil, core.New(core.KindCorrupt, fmt.Sprintf("unsupported idx version %d", version))
	}

	var fanout [256]uint32
	for i := range fanout {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, core.Wrap(core.KindCorrupt, "truncated idx fanout table", err)
		}
		fanout[i] = be.Uint32(b[:])
	}
	count := int(fanout[255])

	ids := make([]hash.ID, count)
	for i := range ids {
		var b [hash.Size]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, core.Wrap(core.KindCorrupt, "truncated idx id table", err)
		}
		ids[i], _ = hash.FromBytes(b[:])
	}

	crcs := make([]uint32, count)
	for i := range crcs {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, core.Wrap(core.KindCorrupt, "truncated idx crc table", err)
		}
		crcs[i] = be.Uint32(b[:])
	}

	rawOffsets := make([]uint32, count)
	var numLarge int
	for i := range rawOffsets {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, core.Wrap(core.KindCorrupt, "truncated idx offset table", err)
		}
		rawOffsets[i] = be.Uint32(b[:])
		if rawOffsets[i]&largeOffsetFlag != 0 {
			idx := int(rawOffsets[i] &^ largeOffsetFlag)
			if idx+1 > numLarge {
				numLarge = idx + 1
			}
		}
	}

	largeOffsets := make([]int64, numLarge)
	for i := range largeOffsets {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, core.Wrap(core.KindCorrupt, "truncated idx large-offset table", err)
		}
		largeOffsets[i] = int64(binary.BigEndian.Uint64(b[:]))
	}

	var packSumBytes [hash.Size]byte
	if _, err := io.ReadFull(r, packSumBytes[:]); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated idx pack checksum", err)
	}
	packSum, _ := hash.FromBytes(packSumBytes[:])

	var idxSumBytes [hash.Size]byte
	if _, err := io.ReadFull(r, idxSumBytes[:]); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated idx self checksum", err)
	}

	entries := make([]Entry, count)
	for i := range entries {
		off := int64(rawOffsets[i])
		if rawOffsets[i]&largeOffsetFlag != 0 {
			off = largeOffsets[rawOffsets[i]&^largeOffsetFlag]
		}
		entries[i] = Entry{ID: ids[i], CRC32: crcs[i], Offset: off}
	}

	return &Index{PackChecksum: packSum, Entries: entries}, nil
}

func legacyV1Unsupported() error {
	return core.New(core.KindCorrupt, "idx v1 (no magic) is not supported; regenerate with a current pack index")
}
