// Package status implements C9: reconciling (HEAD tree, staging index,
// worktree) into the named status sets spec.md §4.7 defines. Grounded
// on go-git's worktree_status.go (the Status/FileStatus shape and its
// racily-clean size+mtime short-circuit before falling back to
// hashing), adapted to this engine's explicit index/worktree/object
// packages instead of go-git's combined Worktree type.
package status

import (
	"sort"
	"strings"

	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/index"
	"github.com/statewalker/vcs-sub002/merge"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storer"
	"github.com/statewalker/vcs-sub002/worktree"
)

// racilyCleanMarginSeconds is spec.md §4.7's safety margin: a worktree
// file whose mtime falls within this many seconds of the index's own
// write time can't be trusted by size+mtime alone, since both could
// have been written within the same filesystem timestamp tick.
const racilyCleanMarginSeconds = 3

// Options governs Compute.
type Options struct {
	// RespectAssumeUnchanged, when true (the default a caller should
	// normally pass), skips content comparison for index entries
	// carrying the assumeValid flag. Spec.md §4.7 lets a caller opt out
	// to force a full rehash.
	RespectAssumeUnchanged bool
	// IndexMTime is the on-disk index file's own modification time
	// (Unix seconds). Zero disables the racily-clean optimization
	// entirely: every tracked file is hashed rather than trusted by
	// size+mtime.
	IndexMTime int64
}

// RenamePair is a SPEC_FULL.md C9 addition: an exact-content match
// between a path status found in Removed and one found in Untracked,
// reported the way `git status` prints "renamed:" once it notices a
// removed blob's content reappearing verbatim under a new path.
type RenamePair struct {
	From, To string
}

// Status is the full C9 result.
type Status struct {
	Added             []string
	Changed           []string
	Removed           []string
	Missing           []string
	Modified          []string
	Untracked         []string
	UntrackedFolders  []string
	Conflicting       map[string]merge.StageState
	IgnoredNotInIndex []string
	AssumeUnchanged   []string
	RenamesFollowed   []RenamePair
}

// IsClean reports whether Added, Changed, Removed, Missing, Modified,
// Untracked and Conflicting are all empty — the condition a caller checks
// before allowing a commit or a branch switch. The other sets are not
// considered.
func (s Status) IsClean() bool {
	return len(s.Added) == 0 && len(s.Changed) == 0 && len(s.Removed) == 0 &&
		len(s.Missing) == 0 && len(s.Modified) == 0 && len(s.Untracked) == 0 &&
		len(s.Conflicting) == 0
}

// Compute reconciles headTree (the zero id for an unborn HEAD), idx and
// wt into a Status. wt may be worktree.Null() for a bare repository, in
// which case every worktree-dependent set (Missing, Modified, Untracked,
// UntrackedFolders, IgnoredNotInIndex) comes back empty.
func Compute(store storer.ObjectStore, headTree hash.ID, idx *index.Index, wt worktree.Worktree, opts Options) (Status, error) {
	head, err := flattenTree(store, headTree)
	if err != nil {
		return Status{}, err
	}

	stage0 := map[string]index.Entry{}
	knownPaths := map[string]bool{}
	it := idx.Entries()
	for it.Next() {
		e := it.Entry()
		knownPaths[e.Name] = true
		if e.Stage == index.StageMerged {
			stage0[e.Name] = e
		}
	}

	st := Status{Conflicting: map[string]merge.StageState{}}

	for _, path := range idx.GetConflictedPaths() {
		_, hasBase := idx.GetEntry(path, index.StageBase)
		_, hasOurs := idx.GetEntry(path, index.StageOurs)
		_, hasTheirs := idx.GetEntry(path, index.StageTheirs)
		st.Conflicting[path] = merge.StageEntries(hasBase, hasOurs, hasTheirs)
	}

	for path, e := range stage0 {
		if e.AssumeValid {
			st.AssumeUnchanged = append(st.AssumeUnchanged, path)
		}
		h, inHead := head[path]
		switch {
		case !inHead:
			st.Added = append(st.Added, path)
		case h.ID != e.ID:
			st.Changed = append(st.Changed, path)
		}
	}
	for path := range head {
		if _, ok := stage0[path]; !ok {
			st.Removed = append(st.Removed, path)
		}
	}

	if wt != nil && wt.Filesystem() != nil {
		worktreeFiles := map[string]worktree.Entry{}
		var dirs []string
		if err := wt.Walk(func(e worktree.Entry) error {
			if e.IsDir {
				dirs = append(dirs, e.Path)
			} else {
				worktreeFiles[e.Path] = e
			}
			return nil
		}); err != nil {
			return Status{}, err
		}

		for path, e := range stage0 {
			wfile, present := worktreeFiles[path]
			if !present {
				st.Missing = append(st.Missing, path)
				continue
			}
			if opts.RespectAssumeUnchanged && e.AssumeValid {
				continue
			}
			if !needsRehash(e, wfile, opts.IndexMTime) {
				continue
			}
			cur, err := wt.ComputeHash(path)
			if err != nil {
				return Status{}, err
			}
			if cur != e.ID {
				st.Modified = append(st.Modified, path)
			}
		}

		for path := range worktreeFiles {
			if knownPaths[path] {
				continue
			}
			if wt.IsIgnored(path) {
				st.IgnoredNotInIndex = append(st.IgnoredNotInIndex, path)
				continue
			}
			st.Untracked = append(st.Untracked, path)
		}

		st.UntrackedFolders = untrackedFolders(dirs, knownPaths)
		st.RenamesFollowed = detectRenames(store, head, st.Removed, st.Untracked, wt)
	}

	sort.Strings(st.Added)
	sort.Strings(st.Changed)
	sort.Strings(st.Removed)
	sort.Strings(st.Missing)
	sort.Strings(st.Modified)
	sort.Strings(st.Untracked)
	sort.Strings(st.IgnoredNotInIndex)
	sort.Strings(st.AssumeUnchanged)
	return st, nil
}

// needsRehash decides, per spec.md §4.7's racily-clean rule, whether a
// tracked file must be hashed rather than trusted by size+mtime. A
// mismatched size is always conclusive; a matching size is only
// trustworthy when the file's mtime is safely older than the index's
// own write time minus the safety margin.
func needsRehash(e index.Entry, w worktree.Entry, indexMTime int64) bool {
	if int64(e.Size) != w.Size {
		return true
	}
	if indexMTime == 0 {
		return true
	}
	if w.ModTime != int64(e.MTimeSec) {
		return true
	}
	return w.ModTime >= indexMTime-racilyCleanMarginSeconds
}

// untrackedFolders reports the topmost directories that contain no
// index-known path anywhere beneath them, the way `git status` collapses
// a whole untracked subtree into one reported entry instead of listing
// every file in it.
func untrackedFolders(dirs []string, knownPaths map[string]bool) []string {
	isUntracked := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		tracked := false
		prefix := d + "/"
		for p := range knownPaths {
			if strings.HasPrefix(p, prefix) {
				tracked = true
				break
			}
		}
		isUntracked[d] = !tracked
	}

	var out []string
	for _, d := range dirs {
		if !isUntracked[d] {
			continue
		}
		if hasUntrackedAncestor(d, isUntracked) {
			continue
		}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func hasUntrackedAncestor(path string, isUntracked map[string]bool) bool {
	i := strings.LastIndexByte(path, '/')
	for i >= 0 {
		parent := path[:i]
		if isUntracked[parent] {
			return true
		}
		i = strings.LastIndexByte(parent, '/')
	}
	return false
}

// detectRenames matches a Removed path's HEAD blob id against an
// Untracked path's current worktree hash: an exact match is the only
// rename signal cheap enough to compute unconditionally during status
// (a full similarity search belongs to the caller's own diff/rename
// pass, not this reconciliation).
func detectRenames(store storer.ObjectStore, head map[string]object.TreeEntry, removed, untracked []string, wt worktree.Worktree) []RenamePair {
	if len(removed) == 0 || len(untracked) == 0 {
		return nil
	}
	byID := make(map[hash.ID]string, len(untracked))
	for _, path := range untracked {
		id, err := wt.ComputeHash(path)
		if err != nil {
			continue
		}
		byID[id] = path
	}

	var pairs []RenamePair
	for _, from := range removed {
		e, ok := head[from]
		if !ok {
			continue
		}
		if to, ok := byID[e.ID]; ok {
			pairs = append(pairs, RenamePair{From: from, To: to})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].From < pairs[j].From })
	return pairs
}

// flattenTree recursively expands treeID (the zero id meaning "no tree
// yet", the unborn-HEAD case) into a flat path → TreeEntry map of blobs
// and gitlinks only; intermediate directory entries aren't carried since
// status compares leaf content, not directory shape.
func flattenTree(store storer.ObjectStore, treeID hash.ID) (map[string]object.TreeEntry, error) {
	out := map[string]object.TreeEntry{}
	if treeID.IsZero() {
		return out, nil
	}
	if err := flattenInto(store, "", treeID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(store storer.ObjectStore, prefix string, treeID hash.ID, out map[string]object.TreeEntry) error {
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
			if err := flattenInto(store, path, e.ID, out); err != nil {
				return err
			}
			continue
		}
		out[path] = e
	}
	return nil
}
