package filesystem

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/statewalker/vcs-sub002/internal/metrics"
	"github.com/statewalker/vcs-sub002/refstore"
	"github.com/statewalker/vcs-sub002/storage/base"
)

// looseCacheSize is the default read-through object cache size for a
// filesystem backing; unlike the in-memory backing (already a map),
// this avoids re-inflating+rehashing a loose object's zlib frame on
// every repeated Load.
const looseCacheSize = 4096

// Repository bundles the three filesystem-backed C1/C2/C5 stores that
// make up a dotgit-style object database: loose + pack object storage,
// and the ref store. Grounded on go-git's storage/filesystem.Storage,
// which bundles the same trio over a dotgit.DotGit.
type Repository struct {
	FS    billy.Filesystem
	Objects *base.ObjectStore
	Refs    *refstore.Store
	packs   *PackSet
}

// Open wires a Repository over dotPath (the ".git" directory for a
// non-bare repository, or the repository root itself when bare).
// Objects are backed by the OS filesystem rooted at dotPath; callers
// needing a different backing (in-memory, chroot, sandboxed tests) can
// build the three pieces directly instead of going through Open.
func Open(dotPath string, m *metrics.Set) (*Repository, error) {
	fs := osfs.New(dotPath)
	return OpenFS(fs, m)
}

// OpenFS is Open parameterized over an arbitrary billy.Filesystem,
// letting callers substitute memfs, a chroot, or a test double.
func OpenFS(fs billy.Filesystem, m *metrics.Set) (*Repository, error) {
	packs, err := NewPackSet(fs)
	if err != nil {
		return nil, err
	}
	loose := NewLooseStore(fs)
	objects := base.NewObjectStore(loose, packs, m, looseCacheSize)
	refs := refstore.New(NewRefBackend(fs))
	return &Repository{FS: fs, Objects: objects, Refs: refs, packs: packs}, nil
}

// RefreshPacks re-scans objects/pack/ for packs written since Open (a
// concurrent fetch or GC compaction); call after either completes.
func (r *Repository) RefreshPacks() error { return r.packs.Refresh() }

// Close releases open pack file handles.
func (r *Repository) Close() error { return r.packs.Close() }
