// Package revwalk implements C10: the commit-ancestry walk and
// merge-base algorithms. Grounded on go-git's plumbing/object package —
// commit_walker.go's commitPreIterator/commitPostIterator family for the
// topological walk, and (since this pack's retrieval dropped the actual
// MergeBase/Independents implementation file, only its test survived in
// plumbing/object/merge_base_test.go) Git's own documented
// best-common-ancestors algorithm for merge-base, reimplemented from
// that description and the test's expectations. The walk's priority
// ordering uses gods/queues/priorityqueue the way SPEC_FULL.md's domain
// stack calls for, mirroring how the teacher keeps its own commit walker
// free of a third-party heap by hand but this engine instead threads one
// through per the pack's wider dependency convention.
package revwalk

import (
	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/storer"
)

// Order controls the sequencing walkAncestry yields commits in.
type Order int

const (
	// OrderCommitterTime yields commits newest-first by committer
	// timestamp, breaking ties by commit id. A commit's parents are
	// queued only once it has been visited, so a commit is always yielded
	// before its parents, as in `git log`'s default order.
	OrderCommitterTime Order = iota
	// OrderBFS yields commits breadth-first from the start set, ignoring
	// timestamps entirely.
	OrderBFS
)

// Options governs WalkAncestry.
type Options struct {
	Order Order
	// Since/Until bound the walk by committer timestamp (Unix seconds);
	// zero means unbounded. This is a cheap pre-filter ahead of the
	// topological walk (SPEC_FULL.md C10 addition), not a replacement for
	// a caller's own post-filtering of merge commits that straddle the
	// boundary. OrderBFS does not apply Since or Until.
	Since, Until int64
	// FirstParentOnly restricts traversal to each commit's first parent,
	// matching `git log --first-parent`.
	FirstParentOnly bool
}

// Visitor receives each commit id and its loaded Commit payload. Returning
// false cuts the walk at that commit without error (the "cut set" in
// spec.md): its parents are not queued through it, while commits already
// queued are still visited.
type Visitor func(id hash.ID, c object.Commit) (keep bool, err error)

type pqitem struct {
	id    hash.ID
	c     object.Commit
}

// WalkAncestry walks the ancestry of starts, calling visit for each
// distinct commit exactly once, in the order opts.Order selects.
func WalkAncestry(store storer.ObjectStore, starts []hash.ID, opts Options, visit Visitor) error {
	switch opts.Order {
	case OrderBFS:
		return walkBFS(store, starts, opts, visit)
	default:
		return walkByTime(store, starts, opts, visit)
	}
}

func walkByTime(store storer.ObjectStore, starts []hash.ID, opts Options, visit Visitor) error {
	seen := make(map[hash.ID]bool)
	cmp := func(a, b interface{}) int {
		ca, cb := a.(pqitem), b.(pqitem)
		switch {
		case ca.c.Committer.When > cb.c.Committer.When:
			return -1
		case ca.c.Committer.When < cb.c.Committer.When:
			return 1
		default:
			return ca.id.Compare(cb.id)
		}
	}
	pq := priorityqueue.NewWith(cmp)

	push := func(id hash.ID) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		c, err := object.LoadCommit(store, id)
		if err != nil {
			return err
		}
		pq.Enqueue(pqitem{id: id, c: c})
		return nil
	}

	for _, s := range starts {
		if err := push(s); err != nil {
			return err
		}
	}

	for {
		v, ok := pq.Dequeue()
		if !ok {
			return nil
		}
		item := v.(pqitem)

		if opts.Until != 0 && item.c.Committer.When > opts.Until {
			parents := item.c.Parents
			if opts.FirstParentOnly && len(parents) > 1 {
				parents = parents[:1]
			}
			for _, p := range parents {
				if err := push(p); err != nil {
					return err
				}
			}
			continue
		}
		if opts.Since != 0 && item.c.Committer.When < opts.Since {
			continue
		}

		keep, err := visit(item.id, item.c)
		if err != nil {
			return err
		}
		if !keep {
			continue
		}

		parents := item.c.Parents
		if opts.FirstParentOnly && len(parents) > 1 {
			parents = parents[:1]
		}
		for _, p := range parents {
			if err := push(p); err != nil {
				return err
			}
		}
	}
}

func walkBFS(store storer.ObjectStore, starts []hash.ID, opts Options, visit Visitor) error {
	seen := make(map[hash.ID]bool)
	queue := append([]hash.ID(nil), starts...)
	for i := 0; i < len(queue); i++ {
		id := queue[i]
		if seen[id] {
			continue
		}
		seen[id] = true
		c, err := object.LoadCommit(store, id)
		if err != nil {
			return err
		}
		keep, err := visit(id, c)
		if err != nil {
			return err
		}
		if !keep {
			continue
		}
		parents := c.Parents
		if opts.FirstParentOnly && len(parents) > 1 {
			parents = parents[:1]
		}
		queue = append(queue, parents...)
	}
	return nil
}

// IsAncestor reports whether a is an ancestor of (or equal to) b,
// cutting the walk below any commit older than a's committer time, since
// further ancestors there cannot be a (spec.md §4.8).
func IsAncestor(store storer.ObjectStore, a, b hash.ID) (bool, error) {
	if a == b {
		return true, nil
	}
	bc, err := object.LoadCommit(store, b)
	if err != nil {
		return false, err
	}
	ac, err := object.LoadCommit(store, a)
	if err != nil {
		return false, err
	}
	cutoff := ac.Committer.When

	found := false
	err = WalkAncestry(store, []hash.ID{b}, Options{Order: OrderCommitterTime}, func(id hash.ID, c object.Commit) (bool, error) {
		if id == a {
			found = true
			return false, nil
		}
		if c.Committer.When < cutoff {
			return false, nil
		}
		return true, nil
	})
	_ = bc
	return found, err
}

// side marks which of the two merge-base input commits can reach a given
// ancestor: SideA, SideB, or both (SideA|SideB) once histories converge.
type side uint8

const (
	sideA side = 1 << iota
	sideB
)

// MergeBase implements Git's best-common-ancestors algorithm (spec.md
// §4.8): walk from both a and b marking which side(s) reach each commit;
// a commit reached by both sides is a candidate; the result is the
// subset of candidates that are not themselves ancestors of another
// candidate ("independent" commits, in Git's terminology).
func MergeBase(store storer.ObjectStore, a, b hash.ID) ([]hash.ID, error) {
	if a == b {
		return []hash.ID{a}, nil
	}

	flags := make(map[hash.ID]side)
	type queued struct {
		id hash.ID
		s  side
	}

	load := func(id hash.ID) (object.Commit, error) { return object.LoadCommit(store, id) }

	queue := []queued{{a, sideA}, {b, sideB}}
	var candidates []hash.ID
	candidateSet := make(map[hash.ID]bool)

	for i := 0; i < len(queue); i++ {
		id, s := queue[i].id, queue[i].s
		prior := flags[id]
		merged := prior | s
		if merged == prior {
			// Already visited with at least these side bits; don't
			// re-walk parents, but still record as candidate below if
			// this completes both sides for the first time.
			continue
		}
		flags[id] = merged

		if merged == (sideA|sideB) && !candidateSet[id] {
			candidateSet[id] = true
			candidates = append(candidates, id)
		}

		c, err := load(id)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Parents {
			queue = append(queue, queued{p, merged})
		}
	}

	return Independents(store, candidates)
}

// Independents filters commits down to those that are not an ancestor of
// any other commit in the set — the "independent tips" Git reports when
// several criss-cross merge-bases exist (spec.md §4.8).
func Independents(store storer.ObjectStore, commits []hash.ID) ([]hash.ID, error) {
	if len(commits) <= 1 {
		return commits, nil
	}
	var out []hash.ID
	for i, c := range commits {
		isAncestorOfAnother := false
		for j, other := range commits {
			if i == j {
				continue
			}
			ok, err := IsAncestor(store, c, other)
			if err != nil {
				return nil, err
			}
			if ok && c != other {
				isAncestorOfAnother = true
				break
			}
		}
		if !isAncestorOfAnother {
			out = append(out, c)
		}
	}
	return dedupe(out), nil
}

func dedupe(ids []hash.ID) []hash.ID {
	seen := make(map[hash.ID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// VirtualBase constructs a virtual merge base for a multi-candidate
// merge-base set by recursively merging the candidates pairwise, the
// approach spec.md §4.8 names for recursive-merge callers. mergeTrees
// is supplied by the caller (package merge) to avoid an import cycle
// between revwalk and merge.
func VirtualBase(bases []hash.ID, mergeTrees func(base, ours, theirs hash.ID) (hash.ID, error)) (hash.ID, error) {
	if len(bases) == 0 {
		return hash.ID{}, core.New(core.KindPrecondition, "no merge base candidates to combine")
	}
	result := bases[0]
	for _, next := range bases[1:] {
		merged, err := mergeTrees(hash.ID{}, result, next)
		if err != nil {
			return hash.ID{}, err
		}
		result = merged
	}
	return result, nil
}
