// Package index implements the C7 staging index: a sorted
// (path, stage) → entry map with conflict-stage support, tree
// materialization (writeTree/readTree), and two mutation styles
// (a replace-all builder and an incremental editor). The binary
// encoding itself lives in format/index; this package is the
// in-memory working structure plus the tree-construction algorithm,
// grounded on go-git's plumbing/format/index.Index consumers
// (worktree/index.go's buildTreeHelper) generalized to the
// conflict-stage model spec.md §4.5 describes.
package index

import (
	"sort"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	fmtidx "github.com/statewalker/vcs-sub002/format/index"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storer"
)

// Entry is a staging-index record; a type alias over the on-disk
// format's Entry so callers building/reading entries don't juggle two
// near-identical types.
type Entry = fmtidx.Entry

// Stage is a conflict stage (0 = merged, 1/2/3 = base/ours/theirs).
type Stage = fmtidx.Stage

const (
	StageMerged = fmtidx.StageMerged
	StageBase   = fmtidx.StageBase
	StageOurs   = fmtidx.StageOurs
	StageTheirs = fmtidx.StageTheirs
)

type key struct {
	path  string
	stage Stage
}

func compareKeys(a, b interface{}) int {
	ka, kb := a.(key), b.(key)
	if ka.path != kb.path {
		if ka.path < kb.path {
			return -1
		}
		return 1
	}
	if ka.stage != kb.stage {
		if ka.stage < kb.stage {
			return -1
		}
		return 1
	}
	return 0
}

// Index is the in-memory staging index.
type Index struct {
	Version    uint32
	tree       *redblacktree.Tree
	extensions []fmtidx.Extension
}

// New builds an empty index.
func New() *Index {
	return &Index{Version: fmtidx.Version2, tree: redblacktree.NewWith(compareKeys)}
}

// Load decodes a full index from its on-disk form.
func Load(raw *fmtidx.Index) *Index {
	idx := &Index{Version: raw.Version, tree: redblacktree.NewWith(compareKeys), extensions: raw.Extensions}
	for _, e := range raw.Entries {
		idx.tree.Put(key{e.Name, e.Stage}, e)
	}
	return idx
}

// Raw flattens the index back into the on-disk representation, ready
// for format/index.Encode.
func (idx *Index) Raw() *fmtidx.Index {
	out := &fmtidx.Index{Version: idx.Version, Extensions: idx.extensions}
	it := idx.tree.Iterator()
	for it.Next() {
		out.Entries = append(out.Entries, it.Value().(Entry))
	}
	return out
}

// GetEntry looks up a single (path, stage) record.
func (idx *Index) GetEntry(path string, stage Stage) (Entry, bool) {
	v, ok := idx.tree.Get(key{path, stage})
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// SetEntry inserts or replaces an entry at its (Name, Stage) key.
func (idx *Index) SetEntry(e Entry) { idx.tree.Put(key{e.Name, e.Stage}, e) }

// RemoveEntry removes every stage of path.
func (idx *Index) RemoveEntry(path string) {
	for _, s := range []Stage{StageMerged, StageBase, StageOurs, StageTheirs} {
		idx.tree.Remove(key{path, s})
	}
}

// RemoveEntryStage removes a single stage of path, leaving others (used
// while resolving one side of a conflict at a time).
func (idx *Index) RemoveEntryStage(path string, stage Stage) { idx.tree.Remove(key{path, stage}) }

// EntryIterator lazily walks entries in sorted (path, stage) order.
type EntryIterator struct{ it redblacktree.Iterator }

// Entries returns a lazy iterator over every entry, in canonical order.
func (idx *Index) Entries() *EntryIterator { return &EntryIterator{it: idx.tree.Iterator()} }

// Next advances the iterator; false once exhausted.
func (it *EntryIterator) Next() bool { return it.it.Next() }

// Entry returns the current entry.
func (it *EntryIterator) Entry() Entry { return it.it.Value().(Entry) }

// HasConflicts reports whether any path has a non-zero stage.
func (idx *Index) HasConflicts() (bool, error) {
	it := idx.tree.Iterator()
	for it.Next() {
		if it.Key().(key).stage != StageMerged {
			return true, nil
		}
	}
	return false, nil
}

// GetConflictedPaths returns every distinct path with at least one
// non-zero stage, sorted.
func (idx *Index) GetConflictedPaths() []string {
	seen := map[string]bool{}
	it := idx.tree.Iterator()
	for it.Next() {
		k := it.Key().(key)
		if k.stage != StageMerged {
			seen[k.path] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ResolveConflict clears every non-zero stage for path and installs
// resolved as its single stage-0 entry.
func (idx *Index) ResolveConflict(path string, resolved Entry) error {
	resolved.Name = path
	resolved.Stage = StageMerged
	idx.RemoveEntry(path)
	idx.SetEntry(resolved)
	return nil
}

// WriteTree performs the bottom-up canonical tree construction from the
// stage-0 view, failing with core.Unmerged if any non-zero-stage entry
// remains (spec.md §4.5).
func (idx *Index) WriteTree(store storer.ObjectStore) (hash.ID, error) {
	if conflicted, _ := idx.HasConflicts(); conflicted {
		return hash.ID{}, core.New(core.KindUnmerged, "cannot write a tree while unresolved conflicts remain")
	}

	root := &dirNode{children: map[string]*dirNode{}}
	it := idx.tree.Iterator()
	for it.Next() {
		e := it.Value().(Entry)
		insertPath(root, splitPath(e.Name), e)
	}
	return writeDirNode(store, root)
}

type dirNode struct {
	children map[string]*dirNode
	blob     *Entry // set on a leaf
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	parts = append(parts, p[start:])
	return parts
}

func insertPath(n *dirNode, parts []string, e Entry) {
	if len(parts) == 1 {
		if n.children[parts[0]] == nil {
			n.children[parts[0]] = &dirNode{}
		}
		leaf := e
		n.children[parts[0]].blob = &leaf
		return
	}
	child, ok := n.children[parts[0]]
	if !ok {
		child = &dirNode{children: map[string]*dirNode{}}
		n.children[parts[0]] = child
	}
	if child.children == nil {
		child.children = map[string]*dirNode{}
	}
	insertPath(child, parts[1:], e)
}

func writeDirNode(store storer.ObjectStore, n *dirNode) (hash.ID, error) {
	var entries []object.TreeEntry
	for name, child := range n.children {
		if child.blob != nil && child.children == nil {
			entries = append(entries, object.TreeEntry{Name: name, Mode: child.blob.Mode, ID: child.blob.ID})
			continue
		}
		id, err := writeDirNode(store, child)
		if err != nil {
			return hash.ID{}, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, ID: id})
	}
	return object.StoreTree(store, object.Tree{Entries: entries})
}

// ReadTree replaces the stage-0 view with a flattened view of treeID.
// If clear is true, every non-zero stage is removed first; otherwise
// they're left untouched (spec.md §4.5).
func (idx *Index) ReadTree(store storer.ObjectStore, treeID hash.ID, clear bool) error {
	if clear {
		it := idx.tree.Iterator()
		var toRemove []key
		for it.Next() {
			k := it.Key().(key)
			if k.stage != StageMerged {
				toRemove = append(toRemove, k)
			}
		}
		for _, k := range toRemove {
			idx.tree.Remove(k)
		}
	}

	it := idx.tree.Iterator()
	var stage0 []key
	for it.Next() {
		if it.Key().(key).stage == StageMerged {
			stage0 = append(stage0, it.Key().(key))
		}
	}
	for _, k := range stage0 {
		idx.tree.Remove(k)
	}

	return walkTree(store, "", treeID, idx)
}

func walkTree(store storer.ObjectStore, prefix string, treeID hash.ID, idx *Index) error {
	t, err := object.LoadTree(store, treeID)
	if err != nil {
		return err
	}
	for _, e := range t.Entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		if e.Mode.IsDir() {
			if err := walkTree(store, path, e.ID, idx); err != nil {
				return err
			}
			continue
		}
		idx.SetEntry(Entry{Name: path, Mode: e.Mode, ID: e.ID, Stage: StageMerged})
	}
	return nil
}
