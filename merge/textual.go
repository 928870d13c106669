// Package merge implements C11: three-way tree merge and the line-level
// textual merge with conflict markers it falls back to on blob
// conflicts. Grounded on go-git's plumbing/object (tree-entry
// comparison shape in difftree.go/change.go) and on antgroup/hugescm's
// diff3-style merge idiom (this pack's supplementary grounding for the
// textual three-way algorithm go-git itself doesn't implement), built on
// top of sergi/go-diff's Myers diff the way both repos use it for line
// comparison.
package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineEndingMode controls how CRLF/LF normalization is applied before
// the textual merge runs.
type LineEndingMode int

const (
	// LineEndingsAsIs performs no normalization.
	LineEndingsAsIs LineEndingMode = iota
	// LineEndingsLF normalizes every line ending to LF before merging
	// and leaves the result in LF form.
	LineEndingsLF
)

// TextOptions governs TextMerge.
type TextOptions struct {
	LineEndings LineEndingMode
	// Diff3 requests a "|||||||" base section in conflict hunks, showing
	// the base text alongside ours/theirs.
	Diff3 bool
	OursLabel, TheirsLabel, BaseLabel string
}

func (o TextOptions) oursLabel() string {
	if o.OursLabel != "" {
		return o.OursLabel
	}
	return "ours"
}

func (o TextOptions) theirsLabel() string {
	if o.TheirsLabel != "" {
		return o.TheirsLabel
	}
	return "theirs"
}

func (o TextOptions) baseLabel() string {
	if o.BaseLabel != "" {
		return o.BaseLabel
	}
	return "base"
}

// TextMergeResult is the outcome of a line-level three-way merge.
type TextMergeResult struct {
	Content  string
	Conflict bool
}

// splitLines splits s into lines the way Git's merge machinery does: LF
// is the canonical separator; a final line with no trailing newline is
// still its own element, flagged so re-joining doesn't add one.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func normalize(s string, mode LineEndingMode) string {
	s = stripBOM(s)
	if mode == LineEndingsLF {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	}
	return s
}

// stripBOM removes a leading UTF-8/UTF-16 byte-order mark, if present,
// before it can be mistaken for line content by the textual merge
// (SPEC_FULL.md C11 addition: "BOM-aware line-ending normalization").
// unicode.BOMOverride sniffs the mark and picks the matching decoder;
// text with no BOM passes through unchanged.
func stripBOM(s string) string {
	t := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// TextMerge runs a diff3-style three-way merge of base/ours/theirs line
// sequences. On a conflicting hunk it emits Git's conflict-marker
// format:
//
//	<<<<<<< ours
//	...
//	||||||| base      (only with opts.Diff3)
//	...
//	=======
//	...
//	>>>>>>> theirs
func TextMerge(base, ours, theirs string, opts TextOptions) TextMergeResult {
	base = normalize(base, opts.LineEndings)
	ours = normalize(ours, opts.LineEndings)
	theirs = normalize(theirs, opts.LineEndings)

	baseLines := splitLines(base)
	oursLines := splitLines(ours)
	theirsLines := splitLines(theirs)

	oursHunks := diffHunks(baseLines, oursLines)
	theirsHunks := diffHunks(baseLines, theirsLines)

	var out strings.Builder
	conflict := false

	baseIdx := 0
	for baseIdx <= len(baseLines) {
		oh := hunkAt(oursHunks, baseIdx)
		th := hunkAt(theirsHunks, baseIdx)

		switch {
		case oh == nil && th == nil:
			if baseIdx < len(baseLines) {
				out.WriteString(baseLines[baseIdx])
			}
			baseIdx++
		case oh != nil && th == nil:
			out.WriteString(strings.Join(oh.insert, ""))
			baseIdx += oh.baseLen
		case oh == nil && th != nil:
			out.WriteString(strings.Join(th.insert, ""))
			baseIdx += th.baseLen
		default:
			if sameEdit(oh, th) {
				out.WriteString(strings.Join(oh.insert, ""))
				baseIdx += oh.baseLen
				continue
			}
			conflict = true
			span := maxInt(oh.baseLen, th.baseLen)
			writeConflict(&out, opts, baseLines[baseIdx:baseIdx+span], oh.insert, th.insert)
			baseIdx += span
		}
	}

	return TextMergeResult{Content: out.String(), Conflict: conflict}
}

func writeConflict(out *strings.Builder, opts TextOptions, baseSpan, ours, theirs []string) {
	out.WriteString("<<<<<<< " + opts.oursLabel() + "\n")
	out.WriteString(strings.Join(ours, ""))
	if opts.Diff3 {
		out.WriteString("||||||| " + opts.baseLabel() + "\n")
		out.WriteString(strings.Join(baseSpan, ""))
	}
	out.WriteString("=======\n")
	out.WriteString(strings.Join(theirs, ""))
	out.WriteString(">>>>>>> " + opts.theirsLabel() + "\n")
}

func sameEdit(a, b *hunk) bool {
	if a.baseLen != b.baseLen || len(a.insert) != len(b.insert) {
		return false
	}
	for i := range a.insert {
		if a.insert[i] != b.insert[i] {
			return false
		}
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// hunk is one contiguous base-line range that was replaced (possibly by
// zero lines, a pure delete, or extra lines, a pure insert) on one side.
type hunk struct {
	baseStart int
	baseLen   int
	insert    []string
}

func hunkAt(hunks []hunk, baseIdx int) *hunk {
	for i := range hunks {
		if hunks[i].baseStart == baseIdx {
			return &hunks[i]
		}
	}
	return nil
}

// diffHunks computes the base→side edit script as a set of
// non-overlapping hunks anchored at base line offsets, using go-diff's
// line-mode diff (text collapsed to one rune per line via
// DiffLinesToChars, then Myers-diffed, then expanded back).
func diffHunks(base, side []string) []hunk {
	dmp := diffmatchpatch.New()
	baseJoined := strings.Join(base, "")
	sideJoined := strings.Join(side, "")
	a, b, lines := dmp.DiffLinesToChars(baseJoined, sideJoined)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var hunks []hunk
	baseIdx := 0
	var pendingDelete []string
	var pendingInsert []string
	flush := func() {
		if len(pendingDelete) == 0 && len(pendingInsert) == 0 {
			return
		}
		hunks = append(hunks, hunk{
			baseStart: baseIdx - len(pendingDelete),
			baseLen:   len(pendingDelete),
			insert:    append([]string(nil), pendingInsert...),
		})
		pendingDelete = nil
		pendingInsert = nil
	}

	for _, d := range diffs {
		dlines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			baseIdx += len(dlines)
		case diffmatchpatch.DiffDelete:
			pendingDelete = append(pendingDelete, dlines...)
			baseIdx += len(dlines)
		case diffmatchpatch.DiffInsert:
			pendingInsert = append(pendingInsert, dlines...)
		}
	}
	flush()
	return hunks
}
