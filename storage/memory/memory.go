// Package memory implements the in-memory C1/C5 backing: a plain map
// keyed by object id, and an equally simple map of refs. It never
// produces packs on its own — GC compaction against a memory backing
// just means dropping unreachable map entries. Grounded on go-git's
// storage/memory package, which follows the same shape (ObjectStorage as
// a map, ReferenceStorage as a map).
package memory

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/internal/metrics"
	"github.com/statewalker/vcs-sub002/storage/base"
	"github.com/statewalker/vcs-sub002/storer"
)

// RawStore is the C1 in-memory backing.
type RawStore struct {
	mu   sync.RWMutex
	data map[hash.ID][]byte
}

// NewRawStore builds an empty in-memory RawStore.
func NewRawStore() *RawStore {
	return &RawStore{data: make(map[hash.ID][]byte)}
}

func (s *RawStore) Put(key hash.ID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Wrap(core.KindIO, "read payload", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return nil
	}
	s.data[key] = b
	return nil
}

func (s *RawStore) Get(key hash.ID) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	if !ok {
		return nil, core.New(core.KindNotFound, "object not found").WithObject(key.String())
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *RawStore) Has(key hash.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *RawStore) Delete(key hash.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok, nil
}

// ResolvePrefix resolves an abbreviated hex id against every key in the
// map, satisfying storage/base.PrefixScanner. The in-memory backing has
// no on-disk fan-out directory to narrow the search (unlike
// filesystem.LooseStore), so this is a genuine linear scan; acceptable
// here since the memory backing is aimed at small/test repositories, not
// the ones large enough for prefix-resolution cost to matter.
func (s *RawStore) ResolvePrefix(prefix string) ([]hash.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []hash.ID
	for k := range s.data {
		if strings.HasPrefix(k.String(), prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *RawStore) Keys() (storer.KeyIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]hash.ID, 0, len(s.data))
	for k := range s.data {
		ids = append(ids, k)
	}
	return &keyIter{ids: ids}, nil
}

type keyIter struct {
	ids []hash.ID
	i   int
}

func (it *keyIter) Next() (hash.ID, error) {
	if it.i >= len(it.ids) {
		return hash.ID{}, io.EOF
	}
	id := it.ids[it.i]
	it.i++
	return id, nil
}

func (it *keyIter) Close() {}

// NewObjectStore builds a C2 ObjectStore over a fresh in-memory RawStore.
// cacheSize enables the read-through cache; pass 0 to disable it (the
// backing is already a map, so the cache mostly saves re-validating the
// content-hash on every read).
func NewObjectStore(m *metrics.Set, cacheSize int) *base.ObjectStore {
	return base.NewObjectStore(NewRawStore(), nil, m, cacheSize)
}
