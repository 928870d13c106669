// Package merge's tree half: recursive three-way matching of tree
// entries by name across (base, ours, theirs), producing either a
// resolved entry or a conflict recorded across index stages 1/2/3.
// Grounded on the entry-matching shape of go-git's plumbing/object
// difftree.go (it diffs two trees; this generalizes the same
// name-keyed matching to three) plus spec.md §4.9's outcome table.
package merge

import (
	"sort"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	fmtidx "github.com/statewalker/vcs-sub002/format/index"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storer"
)

// StageState classifies a conflicted path by which sides touched it,
// spec.md §4.7's per-conflict classification reused here since a tree
// merge is where these states are first produced.
type StageState int

const (
	StageNone StageState = iota
	BothDeleted
	AddedByUs
	DeletedByThem
	AddedByThem
	DeletedByUs
	BothAdded
	BothModified
)

func (s StageState) String() string {
	switch s {
	case BothDeleted:
		return "BOTH_DELETED"
	case AddedByUs:
		return "ADDED_BY_US"
	case DeletedByThem:
		return "DELETED_BY_THEM"
	case AddedByThem:
		return "ADDED_BY_THEM"
	case DeletedByUs:
		return "DELETED_BY_US"
	case BothAdded:
		return "BOTH_ADDED"
	case BothModified:
		return "BOTH_MODIFIED"
	default:
		return "NONE"
	}
}

// StageEntries computes the StageState for a conflicted path from which
// of stages 1/2/3 (base/ours/theirs) are present, per spec.md §4.7/4.9.
func StageEntries(hasBase, hasOurs, hasTheirs bool) StageState {
	switch {
	case hasBase && !hasOurs && !hasTheirs:
		return BothDeleted
	case !hasBase && hasOurs && !hasTheirs:
		return AddedByUs
	case hasBase && !hasOurs && hasTheirs:
		return DeletedByUs
	case !hasBase && !hasOurs && hasTheirs:
		return AddedByThem
	case hasBase && hasOurs && !hasTheirs:
		return DeletedByThem
	case !hasBase && hasOurs && hasTheirs:
		return BothAdded
	case hasBase && hasOurs && hasTheirs:
		return BothModified
	default:
		return StageNone
	}
}

// Conflict describes one unresolved path after a tree merge: the
// surviving (base/ours/theirs) entries, as present, and its StageState.
type Conflict struct {
	Path    string
	State   StageState
	Base    *object.TreeEntry
	Ours    *object.TreeEntry
	Theirs  *object.TreeEntry
	// TextConflict is set when ours and theirs are both regular files and
	// the textual three-way merge of their contents left conflict
	// markers. The marked-up text is not stored; Ours and Theirs hold the
	// two sides' entries.
	TextConflict bool
}

// TreeOptions governs Merge.
type TreeOptions struct {
	Text TextOptions
	// RenameDetection and SimilarityThreshold are not read by Merge:
	// entries are matched by name only, so a path renamed on one side
	// shows up as a delete plus an add.
	RenameDetection    bool
	SimilarityThreshold float64
}

// Result is the outcome of a full tree merge: the merged tree id (valid
// only when len(Conflicts)==0) plus resolved stage-0 entries and any
// unresolved conflicts populated into index stages by the caller.
type Result struct {
	Tree      hash.ID
	Resolved  []fmtidx.Entry
	Conflicts []Conflict
}

// Merge performs spec.md §4.9's three-way tree merge starting from the
// root trees of base/ours/theirs (any may be the zero ID, meaning "this
// side has no tree at all" — used by callers merging a subtree where one
// side deleted the parent directory).
func Merge(store storer.ObjectStore, base, ours, theirs hash.ID, opts TreeOptions) (Result, error) {
	var res Result
	entries, conflicts, err := mergeDir(store, "", base, ours, theirs, opts)
	if err != nil {
		return Result{}, err
	}
	res.Conflicts = conflicts
	if len(conflicts) > 0 {
		return res, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	tid, err := object.StoreTree(store, object.Tree{Entries: entries})
	if err != nil {
		return Result{}, err
	}
	res.Tree = tid
	for _, e := range entries {
		res.Resolved = append(res.Resolved, fmtidx.Entry{Name: e.Name, Mode: e.Mode, ID: e.ID, Stage: fmtidx.StageMerged})
	}
	return res, nil
}

func loadEntries(store storer.ObjectStore, id hash.ID) (map[string]object.TreeEntry, error) {
	m := map[string]object.TreeEntry{}
	if id.IsZero() {
		return m, nil
	}
	t, err := object.LoadTree(store, id)
	if err != nil {
		return nil, err
	}
	for _, e := range t.Entries {
		m[e.Name] = e
	}
	return m, nil
}

func mergeDir(store storer.ObjectStore, prefix string, base, ours, theirs hash.ID, opts TreeOptions) ([]object.TreeEntry, []Conflict, error) {
	baseEntries, err := loadEntries(store, base)
	if err != nil {
		return nil, nil, err
	}
	oursEntries, err := loadEntries(store, ours)
	if err != nil {
		return nil, nil, err
	}
	theirsEntries, err := loadEntries(store, theirs)
	if err != nil {
		return nil, nil, err
	}

	names := map[string]bool{}
	for n := range baseEntries {
		names[n] = true
	}
	for n := range oursEntries {
		names[n] = true
	}
	for n := range theirsEntries {
		names[n] = true
	}

	var out []object.TreeEntry
	var conflicts []Conflict

	for name := range names {
		b, hasB := baseEntries[name]
		o, hasO := oursEntries[name]
		t, hasT := theirsEntries[name]
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}

		entry, subConflicts, conflict, err := mergeEntry(store, path, b, hasB, o, hasO, t, hasT, opts)
		if err != nil {
			return nil, nil, err
		}
		conflicts = append(conflicts, subConflicts...)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
			continue
		}
		if entry != nil {
			out = append(out, *entry)
		}
	}

	return out, conflicts, nil
}

func mergeEntry(store storer.ObjectStore, path string, b object.TreeEntry, hasB bool, o object.TreeEntry, hasO bool, t object.TreeEntry, hasT bool, opts TreeOptions) (*object.TreeEntry, []Conflict, *Conflict, error) {
	name := lastComponent(path)

	// Unchanged on both sides or only one side touched it: resolve
	// without recursing, per the spec.md §4.9 table.
	switch {
	case hasB && hasO && hasT && same(b, o) && same(b, t):
		return ptr(b, name), nil, nil, nil
	case hasB && hasO && hasT && same(b, o) && !same(b, t):
		return ptr(t, name), nil, nil, nil // theirs changed, ours didn't
	case hasB && hasO && hasT && same(b, t) && !same(b, o):
		return ptr(o, name), nil, nil, nil // ours changed, theirs didn't
	case hasB && hasO && hasT && !same(b, o) && same(o, t):
		return ptr(o, name), nil, nil, nil // both made the identical change
	case !hasB && hasO && !hasT:
		return ptr(o, name), nil, nil, nil // added by us only
	case !hasB && !hasO && hasT:
		return ptr(t, name), nil, nil, nil // added by them only
	case hasB && !hasO && hasT && same(b, t):
		return nil, nil, nil, nil // ours deleted, theirs unchanged -> delete
	case hasB && hasO && !hasT && same(b, o):
		return nil, nil, nil, nil // theirs deleted, ours unchanged -> delete
	case hasB && !hasO && !hasT:
		return nil, nil, nil, nil // both deleted
	}

	// From here on, at least one side diverges from base in a way the
	// fast paths above didn't resolve: either both sides are trees (and
	// we recurse), both are blobs with differing content (textual
	// merge or conflict), a type mismatch, or an add/delete asymmetry
	// (DELETED_BY_US, DELETED_BY_THEM, BOTH_ADDED).
	state := StageEntries(hasB, hasO, hasT)

	if hasO && hasT && o.Mode.IsDir() && t.Mode.IsDir() {
		var baseID hash.ID
		if hasB && b.Mode.IsDir() {
			baseID = b.ID
		}
		sub, subConflicts, err := mergeDir(store, path, baseID, o.ID, t.ID, opts)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(subConflicts) > 0 {
			return nil, subConflicts, nil, nil
		}
		sort.Slice(sub, func(i, j int) bool { return sub[i].Name < sub[j].Name })
		tid, err := object.StoreTree(store, object.Tree{Entries: sub})
		if err != nil {
			return nil, nil, nil, err
		}
		return &object.TreeEntry{Name: name, Mode: filemode.Dir, ID: tid}, nil, nil, nil
	}

	if hasO && hasT && o.Mode.IsRegular() && t.Mode.IsRegular() && !same(o, t) {
		var baseContent string
		if hasB && b.Mode.IsRegular() {
			baseContent = readBlob(store, b.ID)
		}
		oursContent := readBlob(store, o.ID)
		theirsContent := readBlob(store, t.ID)
		merged := TextMerge(baseContent, oursContent, theirsContent, opts.Text)
		if !merged.Conflict {
			id, err := object.StoreBlob(store, []byte(merged.Content))
			if err != nil {
				return nil, nil, nil, err
			}
			return &object.TreeEntry{Name: name, Mode: o.Mode, ID: id}, nil, nil, nil
		}
		return nil, nil, &Conflict{Path: path, State: BothModified, Base: optr(b, hasB), Ours: &o, Theirs: &t, TextConflict: true}, nil
	}

	// Everything else is a genuine conflict: asymmetric add/delete,
	// type changes (blob vs tree, blob vs gitlink), etc.
	return nil, nil, &Conflict{Path: path, State: state, Base: optr(b, hasB), Ours: optr(o, hasO), Theirs: optr(t, hasT)}, nil
}

func lastComponent(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func same(a, b object.TreeEntry) bool { return a.Mode == b.Mode && a.ID == b.ID }

func ptr(e object.TreeEntry, name string) *object.TreeEntry {
	e.Name = name
	return &e
}

func optr(e object.TreeEntry, has bool) *object.TreeEntry {
	if !has {
		return nil
	}
	c := e
	return &c
}

// IndexEntries renders a Conflict into its staging-index rows (one per
// present side, at stages 1/2/3) — spec.md §4.9's "conflicting paths at
// stages 1/2/3", emitted here so a caller writing the merge result into
// the index doesn't re-derive stage numbers from presence bits itself.
func (c Conflict) IndexEntries() []fmtidx.Entry {
	var out []fmtidx.Entry
	if c.Base != nil {
		out = append(out, fmtidx.Entry{Name: c.Path, Mode: c.Base.Mode, ID: c.Base.ID, Stage: fmtidx.StageBase})
	}
	if c.Ours != nil {
		out = append(out, fmtidx.Entry{Name: c.Path, Mode: c.Ours.Mode, ID: c.Ours.ID, Stage: fmtidx.StageOurs})
	}
	if c.Theirs != nil {
		out = append(out, fmtidx.Entry{Name: c.Path, Mode: c.Theirs.Mode, ID: c.Theirs.ID, Stage: fmtidx.StageTheirs})
	}
	return out
}

func readBlob(store storer.ObjectStore, id hash.ID) string {
	_, r, err := object.OpenBlob(store, id)
	if err != nil {
		return ""
	}
	defer r.Close()
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf)
}

// ErrType is returned when a path's merge would mix object kinds
// (blob vs tree) in a way mergeEntry's switch doesn't classify as a
// clean case; surfaced as a Conflict rather than this error in normal
// operation, kept only for completeness of the package's error surface.
var ErrType = core.New(core.KindConflict, "tree merge: incompatible entry kinds")
