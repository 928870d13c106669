// Package idxfile implements Git's pack index (v2) format: a 256-entry
// fanout table, a sorted table of object ids, a parallel CRC32 table, a
// parallel 32-bit offset table (with a 64-bit overflow table for packs
// bigger than 2GiB), and a trailing pair of SHA-1 checksums (pack then
// index). Grounded on go-git's plumbing/format/idxfile package
// (idxfile.go, writer.go, decoder shape implied by MemoryIndex/Writer).
package idxfile

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
)

// Magic is the 4-byte signature at the start of a version 2+ idx file:
// 0xFF, 't', 'O', 'c'.
var Magic = [4]byte{0xff, 't', 'O', 'c'}

// Version2 is the only on-disk version this package writes or reads;
// spec.md requires refusing unknown versions rather than guessing.
const Version2 = 2

const largeOffsetFlag = 1 << 31

// Entry is one object's position in a pack: its id, CRC32 of the
// (still-compressed) entry bytes, and byte offset of the entry header
// within the pack.
type Entry struct {
	ID     hash.ID
	CRC32  uint32
	Offset int64
}

// Index is a fully-decoded (or about-to-be-encoded) pack index, sorted
// by id.
type Index struct {
	PackChecksum hash.ID
	Entries      []Entry
}

// Build sorts entries by id and wraps them into an Index ready to
// Encode. It's the in-memory equivalent of idxfile.Writer.CreateIndex in
// go-git: the pack writer accumulates (id, crc, offset) triples as it
// writes entries, then calls Build once at the end.
func Build(packChecksum hash.ID, entries []Entry) *Index {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Compare(sorted[j].ID) < 0 })
	return &Index{PackChecksum: packChecksum, Entries: sorted}
}

// FindOffset returns the pack offset of id, or NotFound.
func (idx *Index) FindOffset(id hash.ID) (int64, error) {
	i := sort.Search(len(idx.Entries), func(i int) bool { return idx.Entries[i].ID.Compare(id) >= 0 })
	if i < len(idx.Entries) && idx.Entries[i].ID == id {
		return idx.Entries[i].Offset, nil
	}
	return 0, core.New(core.KindNotFound, "object not in pack index").WithObject(id.String())
}

// FindCRC returns the stored CRC32 of id's entry bytes, or NotFound.
func (idx *Index) FindCRC(id hash.ID) (uint32, error) {
	i := sort.Search(len(idx.Entries), func(i int) bool { return idx.Entries[i].ID.Compare(id) >= 0 })
	if i < len(idx.Entries) && idx.Entries[i].ID == id {
		return idx.Entries[i].CRC32, nil
	}
	return 0, core.New(core.KindNotFound, "object not in pack index").WithObject(id.String())
}

// Contains reports whether id is present in the index.
func (idx *Index) Contains(id hash.ID) bool {
	_, err := idx.FindOffset(id)
	return err == nil
}

// ObjectCount returns the number of objects indexed.
func (idx *Index) ObjectCount() int { return len(idx.Entries) }

// ResolvePrefix returns every id in the index whose hex form starts with
// prefix, per spec.md §3's "resolvable unambiguous prefix" requirement:
// the caller (storage/base.ObjectStore.ResolvePrefix) is responsible for
// merging this against the loose tier's own fan-out scan and rejecting
// ambiguity. Entries are sorted by id, the same sorted-id table a real
// .idx's fanout accelerates access into (§4.1/§6), so this is a single
// binary search to the first candidate followed by a linear scan of the
// (normally tiny) matching run rather than a scan of the whole index.
func (idx *Index) ResolvePrefix(prefix string) []hash.ID {
	lo := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].ID.String() >= prefix
	})
	var out []hash.ID
	for i := lo; i < len(idx.Entries) && strings.HasPrefix(idx.Entries[i].ID.String(), prefix); i++ {
		out = append(out, idx.Entries[i].ID)
	}
	return out
}

// fanout computes the 256-entry cumulative-count table: fanout[b] is the
// number of entries whose id's first byte is <= b.
func (idx *Index) fanout() [256]uint32 {
	var fan [256]uint32
	bucket := 0
	for b := 0; b < 256; b++ {
		for bucket < len(idx.Entries) && int(idx.Entries[bucket].ID[0]) == b {
			bucket++
		}
		fan[b] = uint32(bucket)
	}
	return fan
}

var be = binary.BigEndian
