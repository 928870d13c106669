// Package worktree implements C8: the checked-out working copy a
// repository projects its tree objects onto, and the handful of
// filesystem primitives status/checkout/blame build on (walk, hash,
// read/write content, rename, ignore matching). Grounded on go-git's
// own worktree.go and worktree_status.go, generalized to an explicit
// interface so a bare repository can hand back a null implementation
// instead of every caller special-casing bareness.
package worktree

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/go-git/go-billy/v5"

	"github.com/antgroup/hugescm/modules/wildmatch"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storer"
)

// Entry describes one worktree path as currently observed on disk.
type Entry struct {
	Path    string
	Mode    filemode.FileMode
	Size    int64
	ModTime int64 // Unix seconds
	IsDir   bool
}

// Worktree is the C8 contract. A bare repository's Filesystem returns
// nil, GetRoot returns "", and Walk, GetEntry, Exists and IsIgnored
// report nothing found; every other method reports core.Precondition.
type Worktree interface {
	Filesystem() billy.Filesystem
	GetRoot() string
	Walk(fn func(Entry) error) error
	GetEntry(path string) (Entry, bool, error)
	ComputeHash(path string) (hash.ID, error)
	ReadContent(path string) (io.ReadCloser, error)
	WriteContent(path string, r io.Reader) error
	Remove(path string) error
	Mkdir(path string) error
	Rename(from, to string) error
	Exists(path string) bool
	IsIgnored(path string) bool
	CheckoutTree(store storer.ObjectStore, treeID hash.ID, opts CheckoutOptions) error
	CheckoutPaths(store storer.ObjectStore, paths []string, treeID hash.ID, opts CheckoutOptions) error
}

// CheckoutOptions governs how CheckoutTree/CheckoutPaths materialize
// blobs onto disk.
type CheckoutOptions struct {
	Force bool // overwrite files with local modifications
	Keep  func(path string) bool
}

// defaultCheckoutOptions is "keep nothing, refuse to overwrite local
// modifications" — CheckoutTree/CheckoutPaths merge a caller's options
// over this via mergo (SPEC_FULL.md's domain-stack entry for
// dario.cat/mergo: "merges caller-supplied option structs ... over
// documented defaults"), so a caller who only cares about Force never
// has to supply a Keep func.
var defaultCheckoutOptions = CheckoutOptions{Keep: func(string) bool { return false }}

func (o CheckoutOptions) withDefaults() CheckoutOptions {
	merged := defaultCheckoutOptions
	if err := mergo.Merge(&merged, o, mergo.WithOverride); err != nil {
		return o
	}
	return merged
}

// null is the worktree of a bare repository: every mutator fails with
// core.Precondition, matching git's "this operation must be run in a
// work tree" refusal.
type null struct{}

// Null returns the worktree a bare repository exposes.
func Null() Worktree { return null{} }

func (null) Filesystem() billy.Filesystem { return nil }
func (null) GetRoot() string               { return "" }
func (null) Walk(func(Entry) error) error  { return nil }
func (null) GetEntry(string) (Entry, bool, error) { return Entry{}, false, nil }
func (null) ComputeHash(string) (hash.ID, error) {
	return hash.ID{}, bareErr("compute hash")
}
func (null) ReadContent(string) (io.ReadCloser, error) { return nil, bareErr("read content") }
func (null) WriteContent(string, io.Reader) error      { return bareErr("write content") }
func (null) Remove(string) error                       { return bareErr("remove") }
func (null) Mkdir(string) error                         { return bareErr("mkdir") }
func (null) Rename(string, string) error                { return bareErr("rename") }
func (null) Exists(string) bool                          { return false }
func (null) IsIgnored(string) bool                        { return false }
func (null) CheckoutTree(storer.ObjectStore, hash.ID, CheckoutOptions) error {
	return bareErr("checkout")
}
func (null) CheckoutPaths(storer.ObjectStore, []string, hash.ID, CheckoutOptions) error {
	return bareErr("checkout")
}

func bareErr(op string) error {
	return core.New(core.KindPrecondition, op+" requires a work tree, this repository is bare")
}

// FS is the normal, filesystem-backed worktree.
type FS struct {
	fs         billy.Filesystem
	root       string
	ignoreLoad func() ([]string, error) // lazily supplies .gitignore-style patterns
}

// New wraps fs as a worktree rooted at fs.Root(). ignoreLoad, if
// non-nil, is consulted by IsIgnored to build the wildmatch pattern
// set (callers typically read .gitignore + repository excludes here).
func New(fs billy.Filesystem, ignoreLoad func() ([]string, error)) *FS {
	return &FS{fs: fs, root: fs.Root(), ignoreLoad: ignoreLoad}
}

func (w *FS) Filesystem() billy.Filesystem { return w.fs }
func (w *FS) GetRoot() string               { return w.root }

// Walk visits every non-administrative path in the worktree in
// lexical order, depth-first.
func (w *FS) Walk(fn func(Entry) error) error {
	return w.walkDir("", fn)
}

func (w *FS) walkDir(dir string, fn func(Entry) error) error {
	infos, err := w.fs.ReadDir(dir)
	if err != nil {
		if dir == "" {
			return nil
		}
		return core.Wrap(core.KindIO, "read directory", err).WithPath(dir)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	for _, fi := range infos {
		name := fi.Name()
		if dir == "" && name == ".git" {
			continue
		}
		path := name
		if dir != "" {
			path = dir + "/" + name
		}
		e := Entry{Path: path, Size: fi.Size(), ModTime: fi.ModTime().Unix(), IsDir: fi.IsDir()}
		if fi.IsDir() {
			e.Mode = filemode.Dir
			if err := fn(e); err != nil {
				return err
			}
			if err := w.walkDir(path, fn); err != nil {
				return err
			}
			continue
		}
		e.Mode = w.modeOf(fi, path)
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// GetEntry stats a single path.
func (w *FS) GetEntry(path string) (Entry, bool, error) {
	fi, err := w.fs.Lstat(path)
	if err != nil {
		return Entry{}, false, nil
	}
	return Entry{Path: path, Mode: w.modeOf(fi, path), Size: fi.Size(), ModTime: fi.ModTime().Unix(), IsDir: fi.IsDir()}, true, nil
}

// modeOf classifies fi the way a tree entry's mode would record it.
// billy's os.FileMode is usually enough, but some backends (FUSE
// mounts in particular) don't round-trip the executable bit through
// their os.FileInfo faithfully; when the worktree is rooted on a real
// OS path, hasExecBit re-checks the raw stat mode via golang.org/x/sys
// (SPEC_FULL.md's domain-stack entry for C8) instead of trusting fi
// alone.
func (w *FS) modeOf(fi os.FileInfo, path string) filemode.FileMode {
	m := fi.Mode()
	switch {
	case m.IsDir():
		return filemode.Dir
	case m&os.ModeSymlink != 0:
		return filemode.Symlink
	case m&0111 != 0:
		return filemode.Executable
	}
	if w.root != "" {
		if exec, err := hasExecBit(filepath.Join(w.root, path)); err == nil && exec {
			return filemode.Executable
		}
	}
	return filemode.Regular
}

// ComputeHash hashes path's current content the way Git would store it
// as a blob (symlinks hash their link target, not file bytes).
func (w *FS) ComputeHash(path string) (hash.ID, error) {
	fi, err := w.fs.Lstat(path)
	if err != nil {
		return hash.ID{}, core.Wrap(core.KindNotFound, "stat worktree path", err).WithPath(path)
	}
	var data []byte
	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := w.fs.Readlink(path)
		if err != nil {
			return hash.ID{}, core.Wrap(core.KindIO, "read symlink", err).WithPath(path)
		}
		data = []byte(target)
	} else {
		f, err := w.fs.Open(path)
		if err != nil {
			return hash.ID{}, core.Wrap(core.KindIO, "open worktree file", err).WithPath(path)
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			return hash.ID{}, core.Wrap(core.KindIO, "read worktree file", err).WithPath(path)
		}
	}
	return hash.Of("blob", data), nil
}

// ReadContent opens path for reading (symlink targets are resolved by
// the underlying filesystem, matching the semantics checkout/status use
// for blob comparison).
func (w *FS) ReadContent(path string) (io.ReadCloser, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return nil, core.Wrap(core.KindIO, "open worktree file", err).WithPath(path)
	}
	return f, nil
}

// WriteContent overwrites (or creates) path with r's bytes.
func (w *FS) WriteContent(path string, r io.Reader) error {
	if dir := parentDir(path); dir != "" {
		if err := w.fs.MkdirAll(dir, 0755); err != nil {
			return core.Wrap(core.KindIO, "create parent directory", err).WithPath(path)
		}
	}
	f, err := w.fs.Create(path)
	if err != nil {
		return core.Wrap(core.KindIO, "create worktree file", err).WithPath(path)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return core.Wrap(core.KindIO, "write worktree file", err).WithPath(path)
	}
	return nil
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Remove deletes a single worktree file (not recursive).
func (w *FS) Remove(path string) error {
	if err := w.fs.Remove(path); err != nil {
		return core.Wrap(core.KindIO, "remove worktree path", err).WithPath(path)
	}
	return nil
}

// Mkdir creates path and any missing parents.
func (w *FS) Mkdir(path string) error {
	if err := w.fs.MkdirAll(path, 0755); err != nil {
		return core.Wrap(core.KindIO, "create worktree directory", err).WithPath(path)
	}
	return nil
}

// Rename moves from to to, matching billy's (and git mv's) semantics.
func (w *FS) Rename(from, to string) error {
	if dir := parentDir(to); dir != "" {
		if err := w.fs.MkdirAll(dir, 0755); err != nil {
			return core.Wrap(core.KindIO, "create rename target directory", err).WithPath(to)
		}
	}
	if err := w.fs.Rename(from, to); err != nil {
		return core.Wrap(core.KindIO, "rename worktree path", err).WithPath(from)
	}
	return nil
}

// Exists reports whether path is present in the worktree.
func (w *FS) Exists(path string) bool {
	_, err := w.fs.Lstat(path)
	return err == nil
}

// IsIgnored reports whether path matches the ignore pattern set.
func (w *FS) IsIgnored(path string) bool {
	if w.ignoreLoad == nil {
		return false
	}
	patterns, err := w.ignoreLoad()
	if err != nil || len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		if wildmatch.NewWildmatch(p).Match(path) {
			return true
		}
	}
	return false
}

// CheckoutTree materializes every blob reachable from treeID onto disk,
// overwriting local modifications only when opts.Force is set (a file
// whose current hash doesn't match what the worktree would already
// produce for its would-be-overwritten path is a local modification).
func (w *FS) CheckoutTree(store storer.ObjectStore, treeID hash.ID, opts CheckoutOptions) error {
	return w.checkoutSubtree(store, "", treeID, opts.withDefaults())
}

func (w *FS) checkoutSubtree(store storer.ObjectStore, prefix string, treeID hash.ID, opts CheckoutOptions) error {
	t, err := object.LoadTree(store, treeID)
	if err != nil {
		return err
	}
	for _, e := range t.Entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		if opts.Keep != nil && opts.Keep(path) {
			continue
		}
		if e.Mode.IsDir() {
			if err := w.checkoutSubtree(store, path, e.ID, opts); err != nil {
				return err
			}
			continue
		}
		if err := w.checkoutBlob(store, path, e.Mode, e.ID, opts); err != nil {
			return err
		}
	}
	return nil
}

func (w *FS) checkoutBlob(store storer.ObjectStore, path string, mode filemode.FileMode, id hash.ID, opts CheckoutOptions) error {
	if !opts.Force && w.Exists(path) {
		cur, err := w.ComputeHash(path)
		if err == nil && cur != id {
			return core.New(core.KindConflict, "worktree file has local modifications").WithPath(path)
		}
	}
	_, r, err := object.OpenBlob(store, id)
	if err != nil {
		return err
	}
	defer r.Close()
	if mode == filemode.Symlink {
		target, rerr := io.ReadAll(r)
		if rerr != nil {
			return core.Wrap(core.KindIO, "read symlink blob", rerr).WithPath(path)
		}
		if dir := parentDir(path); dir != "" {
			if err := w.fs.MkdirAll(dir, 0755); err != nil {
				return core.Wrap(core.KindIO, "create parent directory", err).WithPath(path)
			}
		}
		_ = w.fs.Remove(path)
		return symlinkErr(w.fs.Symlink(string(target), path), path)

	}
	if err := w.WriteContent(path, r); err != nil {
		return err
	}
	if mode == filemode.Executable {
		if chmodder, ok := w.fs.(interface{ Chmod(string, os.FileMode) error }); ok {
			_ = chmodder.Chmod(path, 0755)
		}
	}
	return nil
}

func symlinkErr(err error, path string) error {
	if err != nil {
		return core.Wrap(core.KindIO, "create symlink", err).WithPath(path)
	}
	return nil
}

// CheckoutPaths materializes only the listed paths (and, for a path that
// names a directory in the tree, everything beneath it) from treeID.
func (w *FS) CheckoutPaths(store storer.ObjectStore, paths []string, treeID hash.ID, opts CheckoutOptions) error {
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}
	keep := opts.Keep
	opts.Keep = func(path string) bool {
		if keep != nil && keep(path) {
			return true
		}
		if wanted[path] {
			return false
		}
		for want := range wanted {
			if strings.HasPrefix(path, want+"/") || strings.HasPrefix(want, path+"/") {
				return false
			}
		}
		return true
	}
	return w.CheckoutTree(store, treeID, opts)
}
