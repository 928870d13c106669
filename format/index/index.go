// Package index implements Git's on-disk staging-index format (DIRC):
// a fixed header, a sorted array of fixed-plus-variable entry records,
// optional named extensions, and a trailing SHA-1 checksum. This is the
// binary codec only; the higher-level staging-index API (C7: getEntry,
// writeTree, conflict stages, builders/editors) lives in package index
// at the workspace root's `index/` directory and is built on top of
// this format.
//
// Grounded on go-git's plumbing/format/index package (decoder.go,
// encoder.go, index.go) for the record layout and extension framing.
package index

import (
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
)

// Signature is the 4-byte magic at the start of every index file.
var Signature = [4]byte{'D', 'I', 'R', 'C'}

// Supported versions. Version2 is what this package writes; Version3
// and Version4 are accepted on read (v4's path-compression and v3's
// extended-flags entries are both handled), letting this engine open
// indexes written by real Git without rewriting history.
const (
	Version2 = 2
	Version3 = 3
	Version4 = 4
)

// Stage is a conflict stage: 0 means "no conflict, the merged entry";
// 1/2/3 are base/ours/theirs during an unresolved merge.
type Stage uint8

const (
	StageMerged Stage = 0
	StageBase   Stage = 1
	StageOurs   Stage = 2
	StageTheirs Stage = 3
)

// Entry is one staging-index record. Timestamps and dev/ino are carried
// for the racily-clean optimization real Git performs; spec.md
// explicitly marks mtime-heuristic status optimization a non-goal, but
// the fields still round-trip so an index written by this engine and
// later read back (or read from a real Git checkout) doesn't lose
// information.
type Entry struct {
	CTimeSec, CTimeNano uint32
	MTimeSec, MTimeNano uint32
	Dev, Ino            uint32
	Mode                filemode.FileMode
	UID, GID            uint32
	Size                uint32
	ID                  hash.ID

	Stage        Stage
	AssumeValid  bool
	SkipWorktree bool
	IntentToAdd  bool

	Name string
}

// Extension is a round-trip-preserved optional index section: a 4-byte
// signature (e.g. "TREE", "REUC") and its raw payload. This package
// never interprets extension contents — SPEC_FULL.md's TREE/REUC
// additions are populated and consumed by the higher-level index
// package, which decodes/encodes these payloads itself so an unknown
// extension a real Git wrote is preserved untouched rather than dropped.
type Extension struct {
	Signature [4]byte
	Data      []byte
}

// Index is a fully-decoded (or about-to-be-encoded) staging index.
type Index struct {
	Version    uint32
	Entries    []Entry
	Extensions []Extension
}
