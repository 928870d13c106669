// Package state implements the C6 repository-state machine: detecting
// which of Git's special operations (merge, cherry-pick, revert,
// rebase, bisect) is in progress by inspecting a fixed set of marker
// files, and the capability record each state grants. Grounded on
// go-git's plumbing/object and worktree status helpers that inspect
// MERGE_HEAD et al., generalized to the full marker set spec.md names.
package state

import (
	"github.com/go-git/go-billy/v5"
)

// Marker file/directory names, relative to the repository's
// administrative directory (the ".git" directory, or the repository
// root itself for a bare repository).
const (
	MergeHead             = "MERGE_HEAD"
	CherryPickHead        = "CHERRY_PICK_HEAD"
	RevertHead            = "REVERT_HEAD"
	RebaseMergeDir        = "rebase-merge"
	RebaseMergeInteractive = "rebase-merge/interactive"
	RebaseApplyDir        = "rebase-apply"
	RebaseApplyApplying   = "rebase-apply/applying"
	BisectLog             = "BISECT_LOG"
	BisectStart           = "BISECT_START"
	BisectTerms           = "BISECT_TERMS"
)

// State is one of the repository-state machine's values.
type State int

const (
	Safe State = iota
	Bare
	Merging
	MergingResolved
	CherryPicking
	CherryPickingResolved
	Reverting
	RevertingResolved
	Bisecting
	Rebasing
	RebasingMerge
	RebasingInteractive
	Apply
)

func (s State) String() string {
	switch s {
	case Safe:
		return "SAFE"
	case Bare:
		return "BARE"
	case Merging:
		return "MERGING"
	case MergingResolved:
		return "MERGING_RESOLVED"
	case CherryPicking:
		return "CHERRY_PICKING"
	case CherryPickingResolved:
		return "CHERRY_PICKING_RESOLVED"
	case Reverting:
		return "REVERTING"
	case RevertingResolved:
		return "REVERTING_RESOLVED"
	case Bisecting:
		return "BISECTING"
	case Rebasing:
		return "REBASING"
	case RebasingMerge:
		return "REBASING_MERGE"
	case RebasingInteractive:
		return "REBASING_INTERACTIVE"
	case Apply:
		return "APPLY"
	default:
		return "UNKNOWN"
	}
}

// Capabilities is the per-state permission record commands consult
// before mutating the repository.
type Capabilities struct {
	CanCheckout   bool
	CanCommit     bool
	CanResetHead  bool
	CanAmend      bool
	IsRebasing    bool
}

// Capabilities returns s's capability record.
func (s State) Capabilities() Capabilities {
	switch s {
	case Safe:
		return Capabilities{CanCheckout: true, CanCommit: true, CanResetHead: true, CanAmend: true}
	case Bare:
		return Capabilities{CanCommit: true, CanResetHead: true, CanAmend: true}
	case MergingResolved, CherryPickingResolved, RevertingResolved:
		return Capabilities{CanCheckout: false, CanCommit: true, CanResetHead: true}
	case Merging, CherryPicking, Reverting:
		return Capabilities{CanCheckout: false, CanCommit: false, CanResetHead: true}
	case Bisecting:
		return Capabilities{CanCheckout: true, CanCommit: true, CanResetHead: true}
	case Rebasing, RebasingMerge, RebasingInteractive, Apply:
		return Capabilities{IsRebasing: true, CanCheckout: false, CanCommit: false, CanResetHead: false}
	default:
		return Capabilities{}
	}
}

// ConflictChecker reports whether the staging index currently has any
// unresolved (stage > 0) entries; satisfied by *index.Index.
type ConflictChecker interface {
	HasConflicts() (bool, error)
}

// Detect inspects fs (rooted at the repository's administrative
// directory) and idx's conflict status to compute the current State,
// applying the priority order from spec.md §4.4: rebase > merge >
// cherry-pick > revert > bisect > bare > safe.
func Detect(fs billy.Filesystem, bare bool, idx ConflictChecker) (State, error) {
	exists := func(p string) bool {
		_, err := fs.Stat(p)
		return err == nil
	}

	switch {
	case exists(RebaseApplyApplying):
		return Apply, nil
	case exists(RebaseApplyDir):
		return Rebasing, nil
	case exists(RebaseMergeInteractive):
		return RebasingInteractive, nil
	case exists(RebaseMergeDir):
		return RebasingMerge, nil
	}

	conflicted, err := idx.HasConflicts()
	if err != nil {
		return Safe, err
	}

	switch {
	case exists(MergeHead):
		if conflicted {
			return Merging, nil
		}
		return MergingResolved, nil
	case exists(CherryPickHead):
		if conflicted {
			return CherryPicking, nil
		}
		return CherryPickingResolved, nil
	case exists(RevertHead):
		if conflicted {
			return Reverting, nil
		}
		return RevertingResolved, nil
	case exists(BisectLog) || exists(BisectStart) || exists(BisectTerms):
		return Bisecting, nil
	case bare:
		return Bare, nil
	default:
		return Safe, nil
	}
}
