// Package hash defines the object identifier type used throughout the
// engine: a 40-character lowercase hex SHA-1 over an object's canonical
// Git framing. Grounded on go-git's plumbing.ObjectID/Hash split
// (plumbing/objectid.go, plumbing/hash.go), simplified to SHA-1 only —
// SHA-256 object format is an explicit non-goal.
package hash

import (
	"bytes"
	"encoding/hex"
	"hash"
	"sort"
	"strconv"

	"github.com/pjbgf/sha1cd"
)

// Size is the raw byte length of a SHA-1 object id.
const Size = 20

// HexSize is the length of an object id's hexadecimal string form.
const HexSize = Size * 2

// ID is a Git object id: the SHA-1 of an object's canonical serialization.
type ID [Size]byte

// Zero is the all-zero id, used as the "no object" sentinel (e.g. the
// old side of a ref update that creates a ref, or a deleted worktree
// entry in a diff).
var Zero ID

// IsZero reports whether id is the all-zero sentinel.
func (id ID) IsZero() bool { return id == Zero }

// String renders id as 40 lowercase hex characters.
func (id ID) String() string { return hex.EncodeToString(id[:]) }

// Bytes returns the raw 20-byte digest.
func (id ID) Bytes() []byte { return id[:] }

// Compare orders two ids bytewise, matching Git's canonical ordering of
// object ids (used for pack index fanout/sort and tree-entry ordering
// tie-breaks).
func (id ID) Compare(other ID) int { return bytes.Compare(id[:], other[:]) }

// FromHex parses a 40-character hex string into an ID. ok is false if s
// isn't exactly 40 valid hex characters.
func FromHex(s string) (id ID, ok bool) {
	if len(s) != HexSize {
		return id, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// FromBytes builds an ID from a raw 20-byte digest. ok is false if b isn't
// exactly Size bytes.
func FromBytes(b []byte) (id ID, ok bool) {
	if len(b) != Size {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// IsHex reports whether s could be a full or partial (prefix) hex object
// id: 1 to HexSize lowercase/uppercase hex characters.
func IsHex(s string) bool {
	if len(s) == 0 || len(s) > HexSize {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Sort sorts ids in increasing byte order, in place.
func Sort(ids []ID) { sort.Sort(Slice(ids)) }

// Slice adapts []ID to sort.Interface in increasing order.
type Slice []ID

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return s[i].Compare(s[j]) < 0 }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Hasher incrementally hashes an object's canonical Git framing:
// "<type> <size>\0" followed by the payload. Backed by sha1cd, which
// detects the SHAttered-style collision attacks while remaining
// bit-compatible with plain SHA-1 on non-adversarial input.
type Hasher struct {
	h hash.Hash
}

// NewHasher starts a Hasher primed with the framing header for an object
// of the given type tag ("blob", "tree", "commit", "tag") and payload
// size. Write the payload, then call Sum.
func NewHasher(typeTag string, size int64) Hasher {
	h := Hasher{h: sha1cd.New()}
	h.h.Write([]byte(typeTag))
	h.h.Write([]byte(" "))
	h.h.Write([]byte(strconv.FormatInt(size, 10)))
	h.h.Write([]byte{0})
	return h
}

// Write feeds payload bytes into the hash.
func (h Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum finalizes the hash and returns the resulting ID.
func (h Hasher) Sum() ID {
	var id ID
	copy(id[:], h.h.Sum(nil))
	return id
}

// Of hashes a complete in-memory payload in one call.
func Of(typeTag string, payload []byte) ID {
	h := NewHasher(typeTag, int64(len(payload)))
	h.Write(payload)
	return h.Sum()
}
