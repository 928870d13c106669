package packfile

import (
	"bufio"
	"crypto/sha1" //nolint:gosec // pack trailer checksum is plain SHA-1 by format definition
	"fmt"
	"hash"
	"io"

	"github.com/golang/groupcache/lru"
	"github.com/klauspost/compress/zlib"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/format/idxfile"
	objhash "github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/internal/trace"
	"github.com/statewalker/vcs-sub002/storer"
)

// maxDeltaDepth is a soft cap (spec.md §4.2: "depth >= 50 is a warning,
// not an error"); crossing it only gets traced. hardDeltaDepth is the
// point past which spec.md §9's "depth cap + visited set" actually
// rejects the chain as Corrupt, catching a ref-delta cycle that the
// visited-offset check alone would miss if it re-entered through a
// different starting offset each time.
const (
	maxDeltaDepth  = 50
	hardDeltaDepth = 4 * maxDeltaDepth
)

// byteReader is the minimal interface the varint/delta decoders need;
// satisfied by both *bufio.Reader and the offset-tracking wrapper below.
type byteReader interface {
	ReadByte() (byte, error)
}

// RawEntry is one decoded pack entry, before delta resolution: either a
// complete object payload (Type is a non-delta type) or delta bytes
// still needing a base.
type RawEntry struct {
	Offset     int64 // byte offset of this entry's header within the pack
	Type       EntryType
	Size       int64   // declared inflated size (payload for non-delta, delta-stream for delta)
	BaseOffset int64   // set for TypeOfsDelta: the base entry's absolute Offset
	BaseID     objhash.ID // set for TypeRefDelta
	Data       []byte     // inflated bytes: object payload, or delta instruction stream
}

// Scanner sequentially decodes entries from a pack byte stream,
// tracking each entry's starting offset so ofs-delta bases can be
// resolved against prior offsets. Used both to index an incoming pack
// and to materialize objects in sequential-only contexts (e.g. a
// streamed push) without needing random access into the source reader.
type Scanner struct {
	r      *bufio.Reader
	pos    int64
	hasher hash.Hash
	Header Header
}

// NewScanner reads and validates the pack header, returning a Scanner
// positioned at the first entry.
func NewScanner(r io.Reader) (*Scanner, error) {
	hw := sha1.New() //nolint:gosec
	tr := io.TeeReader(r, hw)
	br := bufio.NewReaderSize(tr, 32*1024)

	var hdr [12]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated pack header", err)
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	return &Scanner{r: br, pos: 12, hasher: hw, Header: h}, nil
}

// countingByteReader wraps a *bufio.Reader, counting bytes consumed so
// callers can recover each entry's starting offset.
type countingByteReader struct {
	br  *bufio.Reader
	pos *int64
}

func (c countingByteReader) ReadByte() (byte, error) {
	b, err := c.br.ReadByte()
	if err == nil {
		*c.pos++
	}
	return b, err
}

// Next decodes the n-th entry (0-based), or returns io.EOF once
// Header.Count entries have been read.
func (s *Scanner) Next(n int) (*RawEntry, error) {
	if n >= int(s.Header.Count) {
		return nil, io.EOF
	}

	start := s.pos
	cr := countingByteReader{br: s.r, pos: &s.pos}

	entry, err := decodeEntryHeader(cr, s.r, start)
	if err != nil {
		return nil, err
	}

	trace.Performance.Printf("packfile: entry %d type=%v size=%d", n, entry.Type, entry.Size)
	return entry, nil
}

// decodeEntryHeader decodes one entry's type/size/delta-base header
// (via cr, which tracks consumed bytes) and its inflated payload (read
// directly off br, the underlying buffered reader, since zlib needs
// Read not ReadByte).
func decodeEntryHeader(cr byteReader, br *bufio.Reader, offset int64) (*RawEntry, error) {
	typeBits, size, err := decodeObjectHeaderSize(cr)
	if err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated pack entry header", err)
	}
	entry := &RawEntry{Offset: offset, Type: EntryType(typeBits), Size: int64(size)}

	switch entry.Type {
	case TypeOfsDelta:
		dist, err := decodeOfsDelta(cr)
		if err != nil {
			return nil, core.Wrap(core.KindCorrupt, "truncated ofs-delta offset", err)
		}
		entry.BaseOffset = offset - dist
	case TypeRefDelta:
		var idBuf [objhash.Size]byte
		if _, err := io.ReadFull(br, idBuf[:]); err != nil {
			return nil, core.Wrap(core.KindCorrupt, "truncated ref-delta base id", err)
		}
		entry.BaseID, _ = objhash.FromBytes(idBuf[:])
	}

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, core.Wrap(core.KindCorrupt, "bad zlib stream in pack entry", err)
	}
	defer zr.Close()
	data := make([]byte, entry.Size)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated pack entry payload", err)
	}
	entry.Data = data
	return entry, nil
}

// decodeOfsDelta decodes git's offset-delta varint (pack-format.txt
// "OBJ_OFS_DELTA"): like a plain big-endian base-128 varint, except
// each continuation byte's accumulated value is incremented by one
// before the next shift, so the encoding has no redundant
// representations for the same distance.
func decodeOfsDelta(r byteReader) (int64, error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	v := int64(c & 0x7f)
	for c&0x80 != 0 {
		c, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		v++
		v = (v << 7) | int64(c&0x7f)
	}
	return v, nil
}

// Verify checks trailer (the 20 bytes read immediately after the last
// entry) against the SHA-1 accumulated over every byte read so far.
func (s *Scanner) Verify(trailer []byte) error {
	sum := s.hasher.Sum(nil)
	if len(trailer) != len(sum) {
		return core.New(core.KindCorrupt, "malformed pack trailer")
	}
	for i := range sum {
		if trailer[i] != sum[i] {
			return core.New(core.KindCorrupt, "pack trailer checksum mismatch")
		}
	}
	return nil
}

// Reader provides random-access, delta-resolving reads over a sealed
// pack file paired with its .idx, for the filesystem pack-tier backing
// (storage/filesystem.packs) and for fetch/clone unpacking.
type Reader struct {
	ra   io.ReaderAt
	idx  *idxfile.Index
	base BaseResolver // resolves ref-delta bases absent from this pack (thin packs)

	cache *lru.Cache
}

type resolved struct {
	kind storer.Kind
	data []byte
}

// BaseResolver resolves a ref-delta base id that isn't present in the
// pack being read (a "thin pack", as produced by some push negotiations).
type BaseResolver func(id objhash.ID) (storer.Kind, []byte, error)

// NewReader builds a Reader. cacheSize <= 0 disables the resolved-base
// cache (every delta chain is fully re-walked on each Get). The cache
// is keyed by (pack, offset) per spec.md §4.2/§9 — here "pack" is
// implicit in the Reader instance, so the key is just the offset —
// using groupcache's bounded LRU, the way SPEC_FULL.md's domain stack
// calls for (C3's delta-base cache, distinct from C2's object-read
// cache which uses hashicorp/golang-lru instead).
func NewReader(ra io.ReaderAt, idx *idxfile.Index, base BaseResolver, cacheSize int) *Reader {
	r := &Reader{ra: ra, idx: idx, base: base}
	if cacheSize > 0 {
		r.cache = lru.New(cacheSize)
	}
	return r
}

// Has reports whether id is present in this pack's index.
func (r *Reader) Has(id objhash.ID) bool { return r.idx.Contains(id) }

// Get materializes id's kind and payload, resolving any delta chain.
func (r *Reader) Get(id objhash.ID) (storer.Kind, []byte, error) {
	off, err := r.idx.FindOffset(id)
	if err != nil {
		return storer.KindInvalid, nil, err
	}
	return r.getAt(off, 0, nil)
}

func (r *Reader) getAt(offset int64, depth int, visited map[int64]bool) (storer.Kind, []byte, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(offset); ok {
			c := v.(resolved)
			return c.kind, c.data, nil
		}
	}
	if depth > maxDeltaDepth {
		trace.Performance.Printf("packfile: delta chain depth %d exceeds %d at offset %d", depth, maxDeltaDepth, offset)
	}
	if depth > hardDeltaDepth {
		return storer.KindInvalid, nil, core.New(core.KindCorrupt, fmt.Sprintf("delta chain exceeds hard depth cap, likely a ref-delta cycle, at offset %d", offset))
	}
	if visited[offset] {
		return storer.KindInvalid, nil, core.New(core.KindCorrupt, fmt.Sprintf("delta chain cycle detected at offset %d", offset))
	}
	if visited == nil {
		visited = make(map[int64]bool, depth+1)
	}
	visited[offset] = true

	entry, err := r.readEntryAt(offset)
	if err != nil {
		return storer.KindInvalid, nil, err
	}

	var kind storer.Kind
	var payload []byte

	switch {
	case !entry.Type.IsDelta():
		kind, payload = entry.Type.ToKind(), entry.Data

	case entry.Type == TypeOfsDelta:
		baseKind, baseData, err := r.getAt(entry.BaseOffset, depth+1, visited)
		if err != nil {
			return storer.KindInvalid, nil, err
		}
		payload, err = ApplyDelta(baseData, entry.Data)
		if err != nil {
			return storer.KindInvalid, nil, err
		}
		kind = baseKind

	case entry.Type == TypeRefDelta:
		var baseKind storer.Kind
		var baseData []byte
		if baseOff, ferr := r.idx.FindOffset(entry.BaseID); ferr == nil {
			baseKind, baseData, err = r.getAt(baseOff, depth+1, visited)
			if err != nil {
				return storer.KindInvalid, nil, err
			}
		} else {
			if r.base == nil {
				return storer.KindInvalid, nil, core.New(core.KindCorrupt, "ref-delta base not found and no external resolver configured").WithObject(entry.BaseID.String())
			}
			baseKind, baseData, err = r.base(entry.BaseID)
			if err != nil {
				return storer.KindInvalid, nil, err
			}
		}
		payload, err = ApplyDelta(baseData, entry.Data)
		if err != nil {
			return storer.KindInvalid, nil, err
		}
		kind = baseKind
	}

	if r.cache != nil {
		r.cache.Add(offset, resolved{kind: kind, data: payload})
	}
	return kind, payload, nil
}

func (r *Reader) readEntryAt(offset int64) (*RawEntry, error) {
	sr := io.NewSectionReader(r.ra, offset, 1<<40)
	br := bufio.NewReader(sr)
	return decodeEntryHeader(br, br, offset)
}
