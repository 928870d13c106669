// Package refstore implements the C5 reference store: named refs
// (symbolic or direct), resolution with loop detection, reflog append,
// and compare-and-swap mutation. The atomic-write mechanics are backend
// specific (lock-file+rename for the filesystem backend, a mutex for the
// in-memory one); this package holds the backend-agnostic resolve/CAS/
// reflog logic, grounded on go-git's plumbing.Reference type and its
// storage/filesystem dotgit ref-writing (storage/filesystem/reference.go,
// storage/filesystem/dotgit/dotgit_setref.go).
package refstore

import (
	"strings"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
)

// Well-known ref names spec.md calls out as specials.
const (
	HEAD            = "HEAD"
	MergeHead       = "MERGE_HEAD"
	CherryPickHead  = "CHERRY_PICK_HEAD"
	RevertHead      = "REVERT_HEAD"
	OrigHead        = "ORIG_HEAD"
	FetchHead       = "FETCH_HEAD"
	RefsStash       = "refs/stash"
)

// maxSymbolicHops bounds symbolic-ref chain following; spec.md requires
// detecting loops at 5 hops.
const maxSymbolicHops = 5

// Ref is either Direct (ID set, Target empty) or Symbolic (Target set,
// ID the zero value).
type Ref struct {
	Name   string
	ID     hash.ID
	Target string // ref name this ref points to, if symbolic
}

// IsSymbolic reports whether r is a symbolic ref.
func (r Ref) IsSymbolic() bool { return r.Target != "" }

// ReflogEntry is one append-only audit-log line for a ref.
type ReflogEntry struct {
	Old       hash.ID
	New       hash.ID
	Who       core.Identity
	Message   string
}

// Backend is the storage-specific half of the ref store: reading and
// atomically writing individual refs, listing by prefix, and reflog
// persistence. Implementations must guarantee that every mutation is
// observable atomically to concurrent readers.
type Backend interface {
	ReadRef(name string) (Ref, error) // core.NotFound if absent
	ListRefs(prefix string) ([]string, error)
	// CompareAndSwap writes new only if the current value's ID equals
	// *old (for a direct ref) or the current ref is absent when old is
	// nil. Must fail with core.Conflict on mismatch.
	CompareAndSwap(name string, old *hash.ID, new Ref) error
	RemoveRef(name string) error
	AppendReflog(name string, e ReflogEntry) error
	ReadReflog(name string) ([]ReflogEntry, error)
}

// Store is the C5 API surface, backend-agnostic.
type Store struct {
	backend Backend
}

// New wraps backend in a Store.
func New(backend Backend) *Store { return &Store{backend: backend} }

// Get reads a single ref without following symbolic chains.
func (s *Store) Get(name string) (Ref, error) { return s.backend.ReadRef(name) }

// Resolve follows a (possibly chained) symbolic ref to its final direct
// id. If the chain reaches a missing ref, the backend's NotFound error
// is returned unchanged; a loop or a chain longer than maxSymbolicHops
// gives a Protocol-kind error.
func (s *Store) Resolve(name string) (hash.ID, error) {
	seen := make(map[string]bool, maxSymbolicHops)
	cur := name
	for hop := 0; hop < maxSymbolicHops; hop++ {
		if seen[cur] {
			return hash.ID{}, core.New(core.KindProtocol, "symbolic ref loop detected").WithRef(name)
		}
		seen[cur] = true

		r, err := s.backend.ReadRef(cur)
		if err != nil {
			return hash.ID{}, err
		}
		if !r.IsSymbolic() {
			return r.ID, nil
		}
		cur = r.Target
	}
	return hash.ID{}, core.New(core.KindProtocol, "symbolic ref chain too long").WithRef(name)
}

// List returns every ref name with the given prefix ("" for all).
func (s *Store) List(prefix string) ([]string, error) { return s.backend.ListRefs(prefix) }

// Set performs an unconditional direct-ref write by reading the current
// value first and using it as the CAS expectation — i.e. "last write
// observed wins" semantics for callers that don't already hold an
// expected value. Prefer CompareAndSwap when the caller has one.
func (s *Store) Set(name string, id hash.ID) error {
	cur, err := s.backend.ReadRef(name)
	var old *hash.ID
	if err == nil && !cur.IsSymbolic() {
		old = &cur.ID
	}
	return s.CompareAndSwap(name, old, Ref{Name: name, ID: id})
}

// SetSymbolic makes name a symbolic ref pointing at target.
//
// Per spec.md §4.3: writing a symbolic ref name directly (not via
// CompareAndSwap against the pointed-to ref) overwrites the symbolic
// entry itself rather than writing through to the target.
func (s *Store) SetSymbolic(name, target string) error {
	return s.backend.CompareAndSwap(name, nil, Ref{Name: name, Target: target})
}

// Remove deletes a ref.
func (s *Store) Remove(name string) error { return s.backend.RemoveRef(name) }

// CompareAndSwap writes new only if the ref's current id matches
// expected (nil expected means "must not currently exist"). On success,
// it appends a reflog entry; a failure to append is logged by the
// backend and does not roll back the ref write (spec.md §4.3).
func (s *Store) CompareAndSwap(name string, expected *hash.ID, new Ref) error {
	if err := s.backend.CompareAndSwap(name, expected, new); err != nil {
		return err
	}
	if new.IsSymbolic() {
		return nil
	}
	var old hash.ID
	if expected != nil {
		old = *expected
	}
	_ = s.backend.AppendReflog(name, ReflogEntry{Old: old, New: new.ID})
	return nil
}

// AppendReflog appends a fully-formed entry (used by callers that need
// to set the identity/message themselves, e.g. a commit recording who
// made the change).
func (s *Store) AppendReflog(name string, e ReflogEntry) error {
	return s.backend.AppendReflog(name, e)
}

// Reflog returns the append-only history for name, oldest first.
func (s *Store) Reflog(name string) ([]ReflogEntry, error) { return s.backend.ReadReflog(name) }

// IsSpecial reports whether name is one of the fixed special refs
// (HEAD and friends) rather than a refs/heads|tags|remotes/* name.
func IsSpecial(name string) bool {
	switch name {
	case HEAD, MergeHead, CherryPickHead, RevertHead, OrigHead, FetchHead:
		return true
	default:
		return !strings.HasPrefix(name, "refs/")
	}
}
