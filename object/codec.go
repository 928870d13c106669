package object

import (
	"io"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/storer"
)

// StoreTree canonicalizes and stores t, returning its object id.
func StoreTree(s storer.ObjectStore, t Tree) (hash.ID, error) {
	return s.Store(storer.KindTree, t.Encode())
}

// LoadTree loads and parses the tree at id.
func LoadTree(s storer.ObjectStore, id hash.ID) (Tree, error) {
	kind, payload, err := s.Load(id)
	if err != nil {
		return Tree{}, err
	}
	if kind != storer.KindTree {
		return Tree{}, core.New(core.KindCorrupt, "object is not a tree").WithObject(id.String())
	}
	return DecodeTree(payload)
}

// StoreCommit canonicalizes and stores c, returning its object id.
func StoreCommit(s storer.ObjectStore, c Commit) (hash.ID, error) {
	return s.Store(storer.KindCommit, c.Encode())
}

// LoadCommit loads and parses the commit at id.
func LoadCommit(s storer.ObjectStore, id hash.ID) (Commit, error) {
	kind, payload, err := s.Load(id)
	if err != nil {
		return Commit{}, err
	}
	if kind != storer.KindCommit {
		return Commit{}, core.New(core.KindCorrupt, "object is not a commit").WithObject(id.String())
	}
	return DecodeCommit(payload)
}

// StoreTag canonicalizes and stores t, returning its object id.
func StoreTag(s storer.ObjectStore, t Tag) (hash.ID, error) {
	return s.Store(storer.KindTag, t.Encode())
}

// LoadTag loads and parses the annotated tag at id.
func LoadTag(s storer.ObjectStore, id hash.ID) (Tag, error) {
	kind, payload, err := s.Load(id)
	if err != nil {
		return Tag{}, err
	}
	if kind != storer.KindTag {
		return Tag{}, core.New(core.KindCorrupt, "object is not a tag").WithObject(id.String())
	}
	return DecodeTag(payload)
}

// StoreBlob stores raw bytes as a blob. Blobs carry no framing beyond
// the type+size header applied by the object store itself.
func StoreBlob(s storer.ObjectStore, payload []byte) (hash.ID, error) {
	return s.Store(storer.KindBlob, payload)
}

// StoreBlobStream stores a blob from a reader without materializing it,
// the only safe path for large blobs.
func StoreBlobStream(s storer.ObjectStore, size int64, r io.Reader) (hash.ID, error) {
	return s.StoreStream(storer.KindBlob, size, r)
}

// OpenBlob opens a streaming reader over the blob at id.
func OpenBlob(s storer.ObjectStore, id hash.ID) (int64, io.ReadCloser, error) {
	kind, size, r, err := s.LoadStream(id)
	if err != nil {
		return 0, nil, err
	}
	if kind != storer.KindBlob {
		r.Close()
		return 0, nil, core.New(core.KindCorrupt, "object is not a blob").WithObject(id.String())
	}
	return size, r, nil
}
