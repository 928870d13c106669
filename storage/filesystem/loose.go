package filesystem

import (
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zlib"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/storer"
)

// LooseStore is the filesystem C1 backing: each object is a
// zlib-compressed file under objects/<xx>/<rest>, matching Git's own
// loose-object layout exactly so a repository this engine writes is
// byte-for-byte readable by real Git tooling.
type LooseStore struct {
	fs billy.Filesystem
}

// NewLooseStore wraps fs (rooted at the repository's object database,
// i.e. the ".git" directory for a non-bare repo).
func NewLooseStore(fs billy.Filesystem) *LooseStore { return &LooseStore{fs: fs} }

func (s *LooseStore) Put(key hash.ID, r io.Reader) error {
	if ok, _ := s.Has(key); ok {
		return nil
	}
	path := looseObjectPath(s.fs, key)
	if err := s.fs.MkdirAll(s.fs.Join(objectsDir, key.String()[:2]), 0755); err != nil {
		return core.Wrap(core.KindIO, "create object directory", err).WithObject(key.String())
	}

	tmp, err := s.fs.TempFile(s.fs.Join(objectsDir), "tmp-obj-")
	if err != nil {
		return core.Wrap(core.KindIO, "create temp object file", err).WithObject(key.String())
	}
	zw := zlib.NewWriter(tmp)
	if _, err := io.Copy(zw, r); err != nil {
		zw.Close()
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return core.Wrap(core.KindIO, "write loose object", err).WithObject(key.String())
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return core.Wrap(core.KindIO, "flush loose object", err).WithObject(key.String())
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return core.Wrap(core.KindIO, "close loose object", err).WithObject(key.String())
	}
	if err := s.fs.Rename(tmp.Name(), path); err != nil {
		s.fs.Remove(tmp.Name())
		return core.Wrap(core.KindIO, "finalize loose object", err).WithObject(key.String())
	}
	return nil
}

func (s *LooseStore) Get(key hash.ID) (io.ReadCloser, error) {
	f, err := s.fs.Open(looseObjectPath(s.fs, key))
	if err != nil {
		return nil, core.New(core.KindNotFound, "object not found").WithObject(key.String())
	}
	zr, err := zlib.NewReader(f)
	if err != nil {
		f.Close()
		return nil, core.Wrap(core.KindCorrupt, "malformed loose object zlib stream", err).WithObject(key.String())
	}
	return &zlibCloser{zr: zr, f: f}, nil
}

type zlibCloser struct {
	zr io.ReadCloser
	f  billy.File
}

func (z *zlibCloser) Read(p []byte) (int, error) { return z.zr.Read(p) }
func (z *zlibCloser) Close() error {
	err1 := z.zr.Close()
	err2 := z.f.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *LooseStore) Has(key hash.ID) (bool, error) {
	_, err := s.fs.Stat(looseObjectPath(s.fs, key))
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *LooseStore) Delete(key hash.ID) (bool, error) {
	has, _ := s.Has(key)
	if !has {
		return false, nil
	}
	if err := s.fs.Remove(looseObjectPath(s.fs, key)); err != nil {
		return false, core.Wrap(core.KindIO, "remove loose object", err).WithObject(key.String())
	}
	return true, nil
}

// ResolvePrefix resolves an abbreviated hex id against the loose fan-out
// directories prefix selects, satisfying storage/base.PrefixScanner. A
// prefix of 2+ hex characters only has to read one objects/<xx>/
// directory (the same fan-out bucket spec.md §4.1/§6 describes); a
// single-character prefix reads every fan-out directory whose name
// starts with it, still far short of a full-keyspace scan.
func (s *LooseStore) ResolvePrefix(prefix string) ([]hash.ID, error) {
	var out []hash.ID
	switch {
	case len(prefix) >= 2:
		bucket := prefix[:2]
		rest := prefix[2:]
		entries, err := s.fs.ReadDir(s.fs.Join(objectsDir, bucket))
		if err != nil {
			return nil, nil
		}
		for _, e := range entries {
			if len(e.Name()) != hash.HexSize-2 || !strings.HasPrefix(e.Name(), rest) {
				continue
			}
			if id, ok := hash.FromHex(bucket + e.Name()); ok {
				out = append(out, id)
			}
		}
	default:
		fanouts, err := s.fs.ReadDir(objectsDir)
		if err != nil {
			return nil, nil
		}
		for _, fi := range fanouts {
			name := fi.Name()
			if !fi.IsDir() || len(name) != 2 || name == "pack" || name == "info" {
				continue
			}
			if prefix != "" && !strings.HasPrefix(name, prefix) {
				continue
			}
			entries, err := s.fs.ReadDir(s.fs.Join(objectsDir, name))
			if err != nil {
				continue
			}
			for _, e := range entries {
				if len(e.Name()) != hash.HexSize-2 {
					continue
				}
				if id, ok := hash.FromHex(name + e.Name()); ok {
					out = append(out, id)
				}
			}
		}
	}
	return out, nil
}

func (s *LooseStore) Keys() (storer.KeyIterator, error) {
	var ids []hash.ID
	fanouts, err := s.fs.ReadDir(objectsDir)
	if err != nil {
		return &looseKeyIter{}, nil
	}
	for _, fi := range fanouts {
		name := fi.Name()
		if !fi.IsDir() || len(name) != 2 || name == "pack" || name == "info" {
			continue
		}
		entries, err := s.fs.ReadDir(s.fs.Join(objectsDir, name))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if len(e.Name()) != hash.HexSize-2 {
				continue
			}
			if id, ok := hash.FromHex(name + e.Name()); ok {
				ids = append(ids, id)
			}
		}
	}
	return &looseKeyIter{ids: ids}, nil
}

type looseKeyIter struct {
	ids []hash.ID
	i   int
}

func (it *looseKeyIter) Next() (hash.ID, error) {
	if it.i >= len(it.ids) {
		return hash.ID{}, io.EOF
	}
	id := it.ids[it.i]
	it.i++
	return id, nil
}

func (it *looseKeyIter) Close() {}
