// Package blame implements C12: line-level attribution for a path,
// walking history and diffing each commit against its first parent
// (spec.md §4.10), with optional rename-following. Grounded on go-git's
// blame/blame.go for the overall shape (resolve start commit, walk
// history, diff against parent, carry forward unresolved lines) and on
// sergi/go-diff for the per-revision Myers diff go-git's own blame
// package is built on.
//
// spec.md §9 flags multi-parent merge-commit attribution and
// middle-line-delete position remapping as left ambiguous by the
// original source, instructing implementations not to invent a fuller
// design. This package follows that guidance literally: every commit,
// merge or not, is diffed only against its first parent (Parents[0]);
// a merge commit's other parents never contribute attribution. This is
// a known, documented limitation, not an oversight.
package blame

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storer"
)

// Options governs Run.
type Options struct {
	// FollowRenames enables identity-then-similarity rename detection
	// when a path disappears from a parent tree.
	FollowRenames bool
	// SimilarityThreshold is the minimum fraction of shared lines (by
	// count) for a same-named-elsewhere blob to be treated as the
	// rename source when no identical blob exists in the parent tree.
	// Zero defaults to 0.5 (spec.md §4.10/§9: "≥ 50% shared content").
	SimilarityThreshold float64
	// IgnoreWhitespace normalizes runs of whitespace before diffing
	// (SPEC_FULL.md C12 addition).
	IgnoreWhitespace bool
}

// Entry is one contiguous run of result lines sharing a single source
// commit, path, and source line range.
type Entry struct {
	ResultStart, ResultEnd int // 1-based, inclusive
	SourceCommit           hash.ID
	SourcePath             string
	SourceStart, SourceEnd int // 1-based, inclusive, same length as result range
	Author                 core.Identity
}

// Run computes the blame of path as of start, per spec.md §4.10. The
// returned entries partition [1, N] exactly once, N being the number of
// lines in the blob at (start, path).
func Run(store storer.ObjectStore, start hash.ID, path string, opts Options) ([]Entry, error) {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = 0.5
	}

	startCommit, err := object.LoadCommit(store, start)
	if err != nil {
		return nil, err
	}
	startBlobID, ok, err := blobAt(store, startCommit.Tree, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.New(core.KindNotFound, "path not present at start commit").WithPath(path)
	}
	startContent, err := loadBlobText(store, startBlobID)
	if err != nil {
		return nil, err
	}
	lines := splitLines(startContent)
	n := len(lines)

	owner := make([]*Entry, n) // per original line, nil until attributed
	pending := make(map[int]int, n)
	for i := 0; i < n; i++ {
		pending[i] = i
	}

	curCommit, curID, curPath, curLines := startCommit, start, path, lines

	for len(pending) > 0 {
		if len(curCommit.Parents) == 0 {
			attributeRemaining(owner, pending, curID, curPath, curCommit.Author)
			break
		}
		parentID := curCommit.Parents[0]
		parentCommit, err := object.LoadCommit(store, parentID)
		if err != nil {
			return nil, err
		}

		parentPath := curPath
		parentBlobID, exists, err := blobAt(store, parentCommit.Tree, parentPath)
		if err != nil {
			return nil, err
		}
		if !exists && opts.FollowRenames {
			rp, rid, rok, err := findRenameSource(store, parentCommit.Tree, curLines, opts.SimilarityThreshold)
			if err != nil {
				return nil, err
			}
			if rok {
				parentPath, parentBlobID, exists = rp, rid, true
			}
		}

		if !exists {
			attributeRemaining(owner, pending, curID, curPath, curCommit.Author)
			break
		}

		parentContent, err := loadBlobText(store, parentBlobID)
		if err != nil {
			return nil, err
		}
		parentLines := splitLines(parentContent)

		curToParent, curIsInsert := diffLineMap(parentLines, curLines, opts.IgnoreWhitespace)

		next := make(map[int]int, len(pending))
		for orig, curIdx := range pending {
			if curIsInsert[curIdx] {
				owner[orig] = &Entry{SourceCommit: curID, SourcePath: curPath, SourceStart: curIdx + 1, SourceEnd: curIdx + 1, Author: curCommit.Author}
				continue
			}
			if pIdx, ok := curToParent[curIdx]; ok {
				next[orig] = pIdx
			} else {
				// Shouldn't happen (every non-insert current line maps
				// to a parent line), but fail safe by attributing here.
				owner[orig] = &Entry{SourceCommit: curID, SourcePath: curPath, SourceStart: curIdx + 1, SourceEnd: curIdx + 1, Author: curCommit.Author}
			}
		}
		pending = next
		curCommit, curID, curPath, curLines = parentCommit, parentID, parentPath, parentLines
	}

	return compress(owner), nil
}

func attributeRemaining(owner []*Entry, pending map[int]int, commitID hash.ID, path string, author core.Identity) {
	for orig, curIdx := range pending {
		owner[orig] = &Entry{SourceCommit: commitID, SourcePath: path, SourceStart: curIdx + 1, SourceEnd: curIdx + 1, Author: author}
	}
}

// compress merges adjacent per-line attributions that share the same
// source commit/path and are contiguous in both result and source line
// numbering into single Entry ranges.
func compress(owner []*Entry) []Entry {
	var out []Entry
	for i := 0; i < len(owner); i++ {
		e := owner[i]
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.SourceCommit == e.SourceCommit && last.SourcePath == e.SourcePath &&
				last.ResultEnd == i && last.SourceEnd == e.SourceStart-1 {
				last.ResultEnd = i + 1
				last.SourceEnd = e.SourceEnd
				continue
			}
		}
		out = append(out, Entry{
			ResultStart: i + 1, ResultEnd: i + 1,
			SourceCommit: e.SourceCommit, SourcePath: e.SourcePath,
			SourceStart: e.SourceStart, SourceEnd: e.SourceEnd,
			Author: e.Author,
		})
	}
	return out
}

// splitLines splits content the way spec.md §4.10 requires: LF, CRLF,
// and lone CR all terminate a line; a missing trailing newline still
// yields the final line as its own element.
func splitLines(content string) []string {
	var lines []string
	start := 0
	i := 0
	for i < len(content) {
		switch content[i] {
		case '\n':
			lines = append(lines, content[start:i+1])
			i++
			start = i
		case '\r':
			if i+1 < len(content) && content[i+1] == '\n' {
				lines = append(lines, content[start:i+2])
				i += 2
			} else {
				lines = append(lines, content[start:i+1])
				i++
			}
			start = i
		default:
			i++
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}

func loadBlobText(store storer.ObjectStore, id hash.ID) (string, error) {
	_, r, err := object.OpenBlob(store, id)
	if err != nil {
		return "", err
	}
	defer r.Close()
	var buf strings.Builder
	tmp := make([]byte, 8192)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			break
		}
	}
	return buf.String(), nil
}

// blobAt resolves path (slash-separated) against treeID, returning the
// blob id if path names a regular file.
func blobAt(store storer.ObjectStore, treeID hash.ID, path string) (hash.ID, bool, error) {
	parts := strings.Split(path, "/")
	cur := treeID
	for i, part := range parts {
		t, err := object.LoadTree(store, cur)
		if err != nil {
			return hash.ID{}, false, err
		}
		e, found := t.Find(part)
		if !found {
			return hash.ID{}, false, nil
		}
		if i == len(parts)-1 {
			if e.Mode.IsDir() {
				return hash.ID{}, false, nil
			}
			return e.ID, true, nil
		}
		if !e.Mode.IsDir() {
			return hash.ID{}, false, nil
		}
		cur = e.ID
	}
	return hash.ID{}, false, nil
}

// findRenameSource looks for curLines' file elsewhere in parentTree:
// identity match on blob content first, then similarity ≥ threshold by
// shared line count.
func findRenameSource(store storer.ObjectStore, parentTree hash.ID, curLines []string, threshold float64) (string, hash.ID, bool, error) {
	curID := hash.Of("blob", []byte(strings.Join(curLines, "")))

	var bestPath string
	var bestID hash.ID
	bestScore := 0.0
	found := false

	err := walkBlobs(store, "", parentTree, func(path string, id hash.ID) error {
		if id == curID {
			bestPath, bestID, found = path, id, true
			return errStopWalk
		}
		content, err := loadBlobText(store, id)
		if err != nil {
			return nil // unreadable candidate, skip
		}
		score := similarity(curLines, splitLines(content))
		if score >= threshold && score > bestScore {
			bestScore = score
			bestPath, bestID = path, id
			found = true
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return "", hash.ID{}, false, err
	}
	return bestPath, bestID, found, nil
}

var errStopWalk = core.New(core.KindCancelled, "blame: rename search satisfied")

func walkBlobs(store storer.ObjectStore, prefix string, treeID hash.ID, fn func(path string, id hash.ID) error) error {
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
			if err := walkBlobs(store, path, e.ID, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(path, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// similarity is the fraction of curLines' lines also present (by exact
// line match, positionally unordered) in oldLines — a simple shared-
// content metric sufficient for spec.md's "≥ 50% shared content" bar.
func similarity(curLines, oldLines []string) float64 {
	if len(curLines) == 0 {
		return 0
	}
	counts := make(map[string]int, len(oldLines))
	for _, l := range oldLines {
		counts[l]++
	}
	shared := 0
	for _, l := range curLines {
		if counts[l] > 0 {
			counts[l]--
			shared++
		}
	}
	return float64(shared) / float64(len(curLines))
}

// diffLineMap diffs parentLines -> curLines and returns, for every
// curLines index that is NOT an insertion, the parentLines index it
// corresponds to; curIsInsert flags indices that are new in curLines.
func diffLineMap(parentLines, curLines []string, ignoreWhitespace bool) (map[int]int, []bool) {
	normalize := func(s string) string {
		if !ignoreWhitespace {
			return s
		}
		return strings.Join(strings.Fields(s), " ") + "\n"
	}

	dmp := diffmatchpatch.New()
	pNorm := make([]string, len(parentLines))
	cNorm := make([]string, len(curLines))
	for i, l := range parentLines {
		pNorm[i] = normalize(l)
	}
	for i, l := range curLines {
		cNorm[i] = normalize(l)
	}

	a, b, charLines := dmp.DiffLinesToChars(strings.Join(pNorm, ""), strings.Join(cNorm, ""))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, charLines)

	curToParent := make(map[int]int)
	isInsert := make([]bool, len(curLines))

	pIdx, cIdx := 0, 0
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for k := 0; k < n; k++ {
				curToParent[cIdx+k] = pIdx + k
			}
			pIdx += n
			cIdx += n
		case diffmatchpatch.DiffDelete:
			pIdx += n
		case diffmatchpatch.DiffInsert:
			for k := 0; k < n; k++ {
				if cIdx+k < len(isInsert) {
					isInsert[cIdx+k] = true
				}
			}
			cIdx += n
		}
	}
	return curToParent, isInsert
}

// countLines recovers how many joined-line units a diff chunk's text
// represents. DiffCharsToLines has already rehydrated d.Text back into
// its original multi-line form by this point, so counting runes would
// count characters, not lines; split the same way the line maps were
// built instead.
func countLines(text string) int {
	return len(splitLines(text))
}
