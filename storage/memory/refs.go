package memory

import (
	"strings"
	"sync"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/refstore"
)

// RefBackend is the in-memory refstore.Backend: a map guarded by a
// single mutex stands in for the lock-file-and-rename atomicity a real
// filesystem backend needs, since a Go map mutation under a mutex is
// already atomic to concurrent readers.
type RefBackend struct {
	mu      sync.Mutex
	refs    map[string]refstore.Ref
	reflogs map[string][]refstore.ReflogEntry
}

// NewRefBackend builds an empty in-memory ref backend.
func NewRefBackend() *RefBackend {
	return &RefBackend{
		refs:    make(map[string]refstore.Ref),
		reflogs: make(map[string][]refstore.ReflogEntry),
	}
}

func (b *RefBackend) ReadRef(name string) (refstore.Ref, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.refs[name]
	if !ok {
		return refstore.Ref{}, core.New(core.KindNotFound, "ref not found").WithRef(name)
	}
	return r, nil
}

func (b *RefBackend) ListRefs(prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for name := range b.refs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out, nil
}

func (b *RefBackend) CompareAndSwap(name string, old *hash.ID, new refstore.Ref) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, exists := b.refs[name]
	switch {
	case old == nil && exists && !cur.IsSymbolic():
		return core.New(core.KindConflict, "ref already exists").WithRef(name)
	case old != nil:
		if !exists || cur.IsSymbolic() || cur.ID != *old {
			return core.New(core.KindConflict, "ref compare-and-swap mismatch").WithRef(name)
		}
	}
	b.refs[name] = new
	return nil
}

func (b *RefBackend) RemoveRef(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.refs[name]; !ok {
		return core.New(core.KindNotFound, "ref not found").WithRef(name)
	}
	delete(b.refs, name)
	return nil
}

func (b *RefBackend) AppendReflog(name string, e refstore.ReflogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reflogs[name] = append(b.reflogs[name], e)
	return nil
}

func (b *RefBackend) ReadReflog(name string) ([]refstore.ReflogEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]refstore.ReflogEntry(nil), b.reflogs[name]...), nil
}
