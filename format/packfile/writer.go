package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // pack trailer checksum is plain SHA-1 by format definition
	"hash/crc32"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/statewalker/vcs-sub002/format/idxfile"
	objhash "github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/storer"
)

// deltaRatio is the cutoff from spec.md §4.2: a candidate delta is only
// worth keeping when its encoded size is no larger than targetSize
// times this ratio, otherwise the object is stored whole.
const deltaRatio = 0.95

// deltaWindow bounds how many recently-written objects of the same kind
// are considered as delta bases for each new object, trading pack size
// for writer CPU/memory the way git's own --window does.
const deltaWindow = 10

// Source is one object to be packed: its id, kind, and full payload.
// The writer materializes everything up front (this package targets
// repository-sized packs, not the multi-gigabyte histories a streaming
// writer would require).
type Source struct {
	ID      objhash.ID
	Kind    storer.Kind
	Payload []byte
}

// Write encodes objs into a complete pack (header, entries,
// SHA-1 trailer) and returns the matching idx alongside it. Objects are
// grouped by kind and delta-compressed against a sliding window of
// prior same-kind objects; compression order otherwise follows the
// input order (callers wanting good delta locality should pass objects
// in a reachability/topological order, e.g. commits newest-first).
func Write(w io.Writer, objs []Source) (*idxfile.Index, error) {
	h := sha1.New() //nolint:gosec
	tw := io.MultiWriter(w, h)

	if _, err := tw.Write(EncodeHeader(Header{Version: VersionSupported, Count: uint32(len(objs))})); err != nil {
		return nil, err
	}

	var offset int64 = 12
	entries := make([]idxfile.Entry, 0, len(objs))

	windows := map[storer.Kind][]Source{}

	for _, obj := range objs {
		var entryType EntryType
		var payload []byte
		window := windows[obj.Kind]

		baseIdx, delta := bestDelta(window, obj.Payload)
		if delta != nil {
			entryType = TypeRefDelta
			payload = delta
		} else {
			entryType = KindToType(obj.Kind)
			payload = obj.Payload
		}

		entryPrefix := append([]byte(nil), encodeObjectHeaderSize(byte(entryType), uint64(len(payload)))...)
		if entryType == TypeRefDelta {
			entryPrefix = append(entryPrefix, window[baseIdx].ID.Bytes()...)
		}
		if _, err := tw.Write(entryPrefix); err != nil {
			return nil, err
		}

		crcBuf := &bytes.Buffer{}
		crcWriter := io.MultiWriter(tw, crcBuf)
		zw := zlib.NewWriter(crcWriter)
		if _, err := zw.Write(payload); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}

		crc := crc32.ChecksumIEEE(append(entryPrefix, crcBuf.Bytes()...))
		entries = append(entries, idxfile.Entry{ID: obj.ID, CRC32: crc, Offset: offset})

		offset += int64(len(entryPrefix) + crcBuf.Len())

		windows[obj.Kind] = appendWindow(window, obj)
	}

	sum := h.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return nil, err
	}

	var packChecksum objhash.ID
	copy(packChecksum[:], sum)
	return idxfile.Build(packChecksum, entries), nil
}

func appendWindow(window []Source, obj Source) []Source {
	window = append(window, obj)
	if len(window) > deltaWindow {
		window = window[len(window)-deltaWindow:]
	}
	return window
}

// bestDelta finds the window candidate producing the smallest delta for
// target, applying the deltaRatio cutoff; returns (-1, nil) if nothing
// in the window is worth deltifying against.
func bestDelta(window []Source, target []byte) (int, []byte) {
	bestIdx := -1
	var best []byte
	for i, cand := range window {
		d := ComputeDelta(cand.Payload, target)
		if float64(len(d)) > float64(len(target))*deltaRatio {
			continue
		}
		if best == nil || len(d) < len(best) {
			best = d
			bestIdx = i
		}
	}
	return bestIdx, best
}

// TopoSort returns a copy of objs stable-sorted by kind (blobs, then
// trees, then commits, then tags), so objects of the same kind sit next
// to each other for the delta window. It does no further ordering or
// similarity clustering.
func TopoSort(objs []Source) []Source {
	out := make([]Source, len(objs))
	copy(out, objs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
