package filesystem

import (
	"io"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/format/idxfile"
	"github.com/statewalker/vcs-sub002/format/packfile"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/storer"
)

// packReaderCacheSize bounds the resolved-delta-base cache each opened
// pack keeps; packs are typically opened once per process and kept for
// its lifetime, so this trades memory for avoiding repeated delta-chain
// walks on repeat blame/log runs over the same history.
const packReaderCacheSize = 256

// PackSet implements storage/base.PackSet over every sealed .pack/.idx
// pair under objects/pack/. It opens each pack when a scan first finds
// it and keeps it open while its files remain; Refresh re-scans the
// directory for packs written by a concurrent process (e.g. a GC
// compaction or a fetch).
type PackSet struct {
	fs billy.Filesystem

	mu    sync.RWMutex
	packs []*openPack
}

type openPack struct {
	name   string
	idx    *idxfile.Index
	reader *packfile.Reader
	closer io.Closer
}

// NewPackSet scans objects/pack/ for existing pack pairs.
func NewPackSet(fs billy.Filesystem) (*PackSet, error) {
	ps := &PackSet{fs: fs}
	if err := ps.Refresh(); err != nil {
		return nil, err
	}
	return ps, nil
}

// Refresh re-scans the pack directory, opening any new .pack/.idx pairs
// and dropping ones whose files disappeared (e.g. replaced by GC).
func (ps *PackSet) Refresh() error {
	entries, err := ps.fs.ReadDir(packDir)
	if err != nil {
		return nil // no pack directory yet: zero packs, not an error
	}

	names := map[string]bool{}
	for _, e := range entries {
		n := e.Name()
		if len(n) > 5 && n[len(n)-5:] == ".pack" {
			names[n[:len(n)-5]] = true
		}
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	kept := make([]*openPack, 0, len(ps.packs))
	for _, p := range ps.packs {
		if names[p.name] {
			kept = append(kept, p)
			continue
		}
		_ = p.closer.Close()
	}
	ps.packs = kept

	known := map[string]bool{}
	for _, p := range ps.packs {
		known[p.name] = true
	}

	for name := range names {
		if known[name] {
			continue
		}
		op, err := ps.openPack(name)
		if err != nil {
			return err
		}
		ps.packs = append(ps.packs, op)
	}

	sort.Slice(ps.packs, func(i, j int) bool { return ps.packs[i].name < ps.packs[j].name })
	return nil
}

func (ps *PackSet) openPack(name string) (*openPack, error) {
	idxFile, err := ps.fs.Open(idxPath(ps.fs, name))
	if err != nil {
		return nil, core.Wrap(core.KindIO, "open pack index", err)
	}
	defer idxFile.Close()
	idx, err := idxfile.Decode(idxFile)
	if err != nil {
		return nil, err
	}

	packFile, err := ps.fs.Open(packPath(ps.fs, name))
	if err != nil {
		return nil, core.Wrap(core.KindIO, "open pack file", err)
	}

	ra := newSeekReaderAt(packFile)
	reader := packfile.NewReader(ra, idx, ps.resolveExternal, packReaderCacheSize)
	return &openPack{name: name, idx: idx, reader: reader, closer: packFile}, nil
}

// resolveExternal resolves a thin-pack ref-delta base against another
// already-open pack (deltas across pack boundaries happen only for
// thin packs received over the wire, never for packs this engine writes
// itself, but a reader must still handle them).
func (ps *PackSet) resolveExternal(id hash.ID) (storer.Kind, []byte, error) {
	ps.mu.RLock()
	packs := ps.packs
	ps.mu.RUnlock()
	for _, p := range packs {
		if p.idx.Contains(id) {
			return p.reader.Get(id)
		}
	}
	return storer.KindInvalid, nil, core.New(core.KindNotFound, "delta base not found in any pack").WithObject(id.String())
}

func (ps *PackSet) find(id hash.ID) *openPack {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, p := range ps.packs {
		if p.idx.Contains(id) {
			return p
		}
	}
	return nil
}

func (ps *PackSet) Has(id hash.ID) (bool, error) { return ps.find(id) != nil, nil }

func (ps *PackSet) Stat(id hash.ID) (storer.ObjectInfo, error) {
	p := ps.find(id)
	if p == nil {
		return storer.ObjectInfo{}, core.New(core.KindNotFound, "object not found").WithObject(id.String())
	}
	kind, payload, err := p.reader.Get(id)
	if err != nil {
		return storer.ObjectInfo{}, err
	}
	return storer.ObjectInfo{ID: id, Kind: kind, Size: int64(len(payload))}, nil
}

func (ps *PackSet) Load(id hash.ID) (storer.Kind, []byte, error) {
	p := ps.find(id)
	if p == nil {
		return storer.KindInvalid, nil, core.New(core.KindNotFound, "object not found").WithObject(id.String())
	}
	return p.reader.Get(id)
}

func (ps *PackSet) LoadStream(id hash.ID) (storer.Kind, int64, io.ReadCloser, error) {
	kind, payload, err := ps.Load(id)
	if err != nil {
		return storer.KindInvalid, 0, nil, err
	}
	return kind, int64(len(payload)), io.NopCloser(byteReaderOf(payload)), nil
}

// ResolvePrefix resolves an abbreviated hex id against every open pack's
// sorted-id table, satisfying storage/base.PrefixScanner.
func (ps *PackSet) ResolvePrefix(prefix string) ([]hash.ID, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	var out []hash.ID
	for _, p := range ps.packs {
		out = append(out, p.idx.ResolvePrefix(prefix)...)
	}
	return out, nil
}

func (ps *PackSet) IDs() (storer.KeyIterator, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	var ids []hash.ID
	for _, p := range ps.packs {
		for _, e := range p.idx.Entries {
			ids = append(ids, e.ID)
		}
	}
	return &looseKeyIter{ids: ids}, nil
}

// Close releases every open pack file handle.
func (ps *PackSet) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	var first error
	for _, p := range ps.packs {
		if err := p.closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
