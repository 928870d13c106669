// Package gc implements C13: reachability-based garbage collection.
// Grounded on go-git's plumbing/object walking helpers for the
// commit/tree/blob traversal shape and on this module's own
// format/packfile writer for the optional compaction step, since the
// teacher repo leaves GC to the git binary itself and never implements
// object pruning in Go. Reachability is computed the way git-gc
// documents it: every ref tip plus everything it can reach is kept,
// loose and packed objects outside that set are dropped.
package gc

import (
	"io"
	"time"

	"dario.cat/mergo"
	"github.com/dustin/go-humanize"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/format/packfile"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/internal/metrics"
	"github.com/statewalker/vcs-sub002/object"
	"github.com/statewalker/vcs-sub002/refstore"
	"github.com/statewalker/vcs-sub002/storer"
)

// PackWriter persists a freshly built pack (and its index) so the
// object store's pack backing picks it up afterward, returning a name
// or path identifying the written pack for CompactResult. Supplied by
// the caller because only the storage backend knows where packs live;
// gc itself stays backend-agnostic.
type PackWriter func(objs []packfile.Source) (name string, err error)

// Options governs one Run.
type Options struct {
	// DryRun computes what would be pruned without deleting anything.
	DryRun bool
	// Compact rewrites every surviving object into a single fresh pack
	// via PackWriter once pruning finishes.
	Compact bool
	// Aggressive groups surviving objects by kind (packfile.TopoSort)
	// before packing. The delta search window itself is unchanged.
	Aggressive bool
	// PackWriter is required when Compact is set.
	PackWriter PackWriter
	// Metrics, if non-nil, records run counts, pruned-object counts and
	// duration.
	Metrics *metrics.Set
}

// CompactResult describes a compaction pass.
type CompactResult struct {
	PackName      string
	ObjectsPacked int
}

// GCStats summarizes one Run.
type GCStats struct {
	ReachableObjects int
	PrunedObjects    int
	BytesFreed       uint64
	Duration         time.Duration
	Compact          *CompactResult
}

// BytesFreedHuman renders BytesFreed the way `git gc` reports it.
func (s GCStats) BytesFreedHuman() string { return humanize.Bytes(s.BytesFreed) }

// defaultOptions documents Run's baseline configuration: metrics are
// recorded against an unregistered (but fully functional) Set when the
// caller doesn't supply one, so Run always has somewhere to record
// counts even outside a running prometheus registry.
func defaultOptions() Options {
	return Options{Metrics: metrics.NewSet(nil)}
}

// withDefaults merges o over defaultOptions(): any field o leaves at
// its zero value is filled from the default, any field o sets wins.
// Grounded on SPEC_FULL.md's domain-stack entry for dario.cat/mergo
// ("merges caller-supplied option structs over documented defaults").
func (o Options) withDefaults() Options {
	merged := defaultOptions()
	if err := mergo.Merge(&merged, o, mergo.WithOverride); err != nil {
		return o
	}
	return merged
}

// Run performs one garbage-collection pass over store, using refs to
// discover the reachability roots (spec.md §4.11): every ref that
// resolves (unresolved/dangling refs are skipped, not treated as an
// error) is a root; commits, trees, blobs and tags reachable from a
// root are kept; everything else in store is unreachable and, absent
// DryRun, is removed.
func Run(store storer.ObjectStore, refs *refstore.Store, opts Options) (GCStats, error) {
	opts = opts.withDefaults()
	start := time.Now()
	metrics.GCRun(opts.Metrics)

	tips, err := refTips(refs)
	if err != nil {
		return GCStats{}, err
	}

	reachable, err := collectReachable(store, tips)
	if err != nil {
		return GCStats{}, err
	}

	unreachable, err := unreachableIDs(store, reachable)
	if err != nil {
		return GCStats{}, err
	}

	stats := GCStats{ReachableObjects: len(reachable)}

	if opts.DryRun {
		stats.PrunedObjects = len(unreachable)
	} else {
		var freed uint64
		for _, id := range unreachable {
			if info, statErr := store.Stat(id); statErr == nil {
				freed += uint64(info.Size)
			}
			removed, err := store.Remove(id)
			if err != nil {
				return stats, err
			}
			if removed {
				stats.PrunedObjects++
			}
		}
		stats.BytesFreed = freed
	}
	metrics.GCPruned(opts.Metrics, stats.PrunedObjects)

	if opts.Compact {
		cr, err := compact(store, reachable, opts)
		if err != nil {
			return stats, err
		}
		stats.Compact = cr
	}

	stats.Duration = time.Since(start)
	metrics.GCDurationSeconds(opts.Metrics, stats.Duration.Seconds())
	return stats, nil
}

func refTips(refs *refstore.Store) ([]hash.ID, error) {
	names, err := refs.List("")
	if err != nil {
		return nil, err
	}
	var tips []hash.ID
	for _, name := range names {
		id, err := refs.Resolve(name)
		if err != nil {
			// A ref that fails to resolve (dangling symbolic target,
			// unborn branch) contributes no roots; it is not a GC error.
			continue
		}
		tips = append(tips, id)
	}
	return tips, nil
}

// collectReachable walks commits→{tree,parents}, trees→entries, and
// tags→target from every tip, returning the full reachable set.
func collectReachable(store storer.ObjectStore, tips []hash.ID) (map[hash.ID]bool, error) {
	visited := make(map[hash.ID]bool)
	queue := append([]hash.ID(nil), tips...)

	for i := 0; i < len(queue); i++ {
		id := queue[i]
		if visited[id] {
			continue
		}
		visited[id] = true

		info, err := store.Stat(id)
		if err != nil {
			if core.KindOf(err) == core.KindNotFound {
				// A ref or tree entry pointing at a missing object is a
				// corrupt repository concern, not this walk's job to fix.
				continue
			}
			return nil, err
		}

		switch info.Kind {
		case storer.KindCommit:
			c, err := object.LoadCommit(store, id)
			if err != nil {
				return nil, err
			}
			if !visited[c.Tree] {
				queue = append(queue, c.Tree)
			}
			queue = append(queue, c.Parents...)
		case storer.KindTree:
			t, err := object.LoadTree(store, id)
			if err != nil {
				return nil, err
			}
			for _, e := range t.Entries {
				if e.Mode == filemode.Submodule {
					// A gitlink names a commit in another repository;
					// nothing here to walk into.
					continue
				}
				if !visited[e.ID] {
					queue = append(queue, e.ID)
				}
			}
		case storer.KindTag:
			tag, err := object.LoadTag(store, id)
			if err != nil {
				return nil, err
			}
			if !visited[tag.Object] {
				queue = append(queue, tag.Object)
			}
		case storer.KindBlob:
			// leaf
		}
	}

	return visited, nil
}

func unreachableIDs(store storer.ObjectStore, reachable map[hash.ID]bool) ([]hash.ID, error) {
	it, err := store.IDs(storer.KindInvalid)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var unreachable []hash.ID
	for {
		id, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
	}
	return unreachable, nil
}

// compact rewrites every object in reachable into a single fresh pack.
// Aggressive first stable-sorts the objects by kind (packfile.TopoSort);
// either order produces a valid pack.
func compact(store storer.ObjectStore, reachable map[hash.ID]bool, opts Options) (*CompactResult, error) {
	if opts.PackWriter == nil {
		return nil, core.New(core.KindPrecondition, "gc: Compact requires a PackWriter")
	}

	objs := make([]packfile.Source, 0, len(reachable))
	for id := range reachable {
		kind, payload, err := store.Load(id)
		if err != nil {
			if core.KindOf(err) == core.KindNotFound {
				continue
			}
			return nil, err
		}
		objs = append(objs, packfile.Source{ID: id, Kind: kind, Payload: payload})
	}

	if opts.Aggressive {
		objs = packfile.TopoSort(objs)
	}

	name, err := opts.PackWriter(objs)
	if err != nil {
		return nil, err
	}

	return &CompactResult{PackName: name, ObjectsPacked: len(objs)}, nil
}
