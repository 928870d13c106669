// Package storer defines the storage-layer contracts every backing store
// (C1, the opaque raw byte store) and every typed object store (C2) must
// satisfy, independent of whether the backing is in-memory, loose files
// on disk, or a pack. Grounded on go-git's plumbing/storer interfaces,
// collapsed to the single-hash-algorithm (SHA-1) shape spec.md describes.
package storer

import (
	"io"

	"github.com/statewalker/vcs-sub002/hash"
)

// RawStore is the C1 contract: an opaque content-addressed key→bytes map
// with streaming reads. It knows nothing about object kinds — the caller
// (the C2 object store) is responsible for framing payloads before they
// reach Put, and for interpreting them after Get.
type RawStore interface {
	// Put writes exactly the bytes read from r under key. Idempotent: a
	// second Put under the same key with the same bytes is a no-op
	// success; Put never re-validates content already on disk.
	Put(key hash.ID, r io.Reader) error

	// Get opens a streaming reader for key. Returns a *core.Error with
	// Kind NotFound if key is absent, Corrupt if the stored frame fails
	// its internal consistency check.
	Get(key hash.ID) (io.ReadCloser, error)

	// Has reports whether key is present. Must agree with Get: Has
	// returning true implies a subsequent Get succeeds absent a
	// concurrent GC.
	Has(key hash.ID) (bool, error)

	// Delete removes key. Valid only when called by the garbage
	// collector under its repo-wide lock; returns whether key was
	// present.
	Delete(key hash.ID) (bool, error)

	// Keys returns a lazy, stable-for-one-call enumeration of all keys.
	Keys() (KeyIterator, error)
}

// KeyIterator lazily yields object ids.
type KeyIterator interface {
	Next() (hash.ID, error) // returns io.EOF when exhausted
	Close()
}

// Kind tags the four object variants C2 dispatches over.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBlob
	KindTree
	KindCommit
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindCommit:
		return "commit"
	case KindTag:
		return "tag"
	default:
		return "invalid"
	}
}

// ParseKind parses one of the four canonical lowercase type tags used in
// both the loose-object header and pack entry types.
func ParseKind(s string) Kind {
	switch s {
	case "blob":
		return KindBlob
	case "tree":
		return KindTree
	case "commit":
		return KindCommit
	case "tag":
		return KindTag
	default:
		return KindInvalid
	}
}

// ObjectInfo is the cheap-to-obtain metadata Stat returns without
// materializing a blob's payload.
type ObjectInfo struct {
	ID   hash.ID
	Kind Kind
	Size int64
}

// ObjectStore is the C2 contract: hash-addressed typed object I/O.
// Implementations dispatch internally between loose and pack backing
// (first loose, then each pack index, first hit wins) and must surface
// Corrupt rather than silently falling back to a different backing tier.
type ObjectStore interface {
	// Store canonicalizes payload's framing, hashes it, and writes it
	// once (idempotent on an existing id).
	Store(kind Kind, payload []byte) (hash.ID, error)

	// StoreStream is Store for payloads too large to materialize
	// (blobs); size must be exact.
	StoreStream(kind Kind, size int64, r io.Reader) (hash.ID, error)

	// Load materializes payload for trees/commits/tags. Callers that
	// need to stream a blob should use LoadStream instead.
	Load(id hash.ID) (Kind, []byte, error)

	// LoadStream opens a streaming reader for id without materializing
	// it — the only safe way to read a blob that may be gigabytes.
	LoadStream(id hash.ID) (Kind, int64, io.ReadCloser, error)

	// Stat returns kind and size without reading payload.
	Stat(id hash.ID) (ObjectInfo, error)

	// Has reports presence; must be consistent with Load.
	Has(id hash.ID) (bool, error)

	// Remove deletes id. Valid only for the garbage collector.
	Remove(id hash.ID) (bool, error)

	// IDs enumerates every object of the given kind (KindInvalid for
	// all kinds) in unspecified but stable-for-one-call order.
	IDs(kind Kind) (KeyIterator, error)

	// ResolvePrefix resolves a caller-supplied id to a full hash.ID: id
	// may already be the full 40-character hex form, or an unambiguous
	// hex prefix of it (spec.md §3). Load/Has/Stat/Remove themselves
	// still take a resolved hash.ID — every internal caller in this
	// module already has one — so a caller holding a possibly-abbreviated
	// id string calls ResolvePrefix first and passes the result on.
	// Returns NotFound for zero matches, Conflict for more than one.
	ResolvePrefix(id string) (hash.ID, error)
}
