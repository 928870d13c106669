package packfile

import (
	"encoding/binary"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/storer"
)

// Signature is the 4-byte magic at the start of every pack file.
var Signature = [4]byte{'P', 'A', 'C', 'K'}

// VersionSupported is the only pack version this package produces or
// accepts.
const VersionSupported = 2

// EntryType is a pack entry's 3-bit type tag, distinct from
// storer.Kind: it additionally covers the two delta representations.
type EntryType byte

const (
	TypeCommit   EntryType = 1
	TypeTree     EntryType = 2
	TypeBlob     EntryType = 3
	TypeTag      EntryType = 4
	_            EntryType = 5 // reserved by the git format
	TypeOfsDelta EntryType = 6
	TypeRefDelta EntryType = 7
)

// IsDelta reports whether t is one of the two delta representations.
func (t EntryType) IsDelta() bool { return t == TypeOfsDelta || t == TypeRefDelta }

// ToKind maps a non-delta entry type to its storer.Kind. Panics if t is
// a delta type; callers must resolve deltas before calling this.
func (t EntryType) ToKind() storer.Kind {
	switch t {
	case TypeCommit:
		return storer.KindCommit
	case TypeTree:
		return storer.KindTree
	case TypeBlob:
		return storer.KindBlob
	case TypeTag:
		return storer.KindTag
	default:
		panic("packfile: ToKind called on a delta entry type")
	}
}

// KindToType maps a storer.Kind to its non-delta pack entry type.
func KindToType(k storer.Kind) EntryType {
	switch k {
	case storer.KindCommit:
		return TypeCommit
	case storer.KindTree:
		return TypeTree
	case storer.KindBlob:
		return TypeBlob
	case storer.KindTag:
		return TypeTag
	default:
		panic("packfile: KindToType called with an invalid kind")
	}
}

// Header is the fixed 12-byte preamble of a pack file: signature,
// version, object count.
type Header struct {
	Version uint32
	Count   uint32
}

// EncodeHeader renders h as the 12-byte pack preamble.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, 12)
	copy(buf[0:4], Signature[:])
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	binary.BigEndian.PutUint32(buf[8:12], h.Count)
	return buf
}

// DecodeHeader parses and validates the 12-byte pack preamble.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < 12 {
		return Header{}, core.New(core.KindCorrupt, "truncated pack header")
	}
	if string(b[0:4]) != string(Signature[:]) {
		return Header{}, core.New(core.KindCorrupt, "bad pack signature")
	}
	version := binary.BigEndian.Uint32(b[4:8])
	if version != VersionSupported {
		return Header{}, core.New(core.KindCorrupt, "unsupported pack version")
	}
	return Header{Version: version, Count: binary.BigEndian.Uint32(b[8:12])}, nil
}
