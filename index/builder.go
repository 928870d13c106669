package index

// Builder replaces the entire index contents in one pass: callers Add
// every entry the new index should contain, then Commit swaps it in
// atomically. Mirrors git's read-tree/DirCacheBuilder style rebuild,
// generalized from go-git's index.Index direct-slice-replace pattern.
type Builder struct {
	idx     *Index
	entries []Entry
}

// CreateBuilder starts a replace-all rebuild of idx.
func (idx *Index) CreateBuilder() *Builder { return &Builder{idx: idx} }

// Add stages e into the pending replacement set.
func (b *Builder) Add(e Entry) { b.entries = append(b.entries, e) }

// Commit discards every existing entry and installs the staged set.
func (b *Builder) Commit() {
	fresh := New()
	fresh.extensions = b.idx.extensions
	for _, e := range b.entries {
		fresh.SetEntry(e)
	}
	*b.idx = *fresh
}

// Editor applies an incremental batch of add/remove operations to idx
// without disturbing entries the batch doesn't touch, matching Git's
// normal add/rm workflow more closely than a full Builder rebuild.
type Editor struct {
	idx     *Index
	adds    []Entry
	removes []string
}

// CreateEditor starts an incremental batch against idx.
func (idx *Index) CreateEditor() *Editor { return &Editor{idx: idx} }

// Add stages an upsert.
func (e *Editor) Add(entry Entry) { e.adds = append(e.adds, entry) }

// Remove stages the removal of every stage of path.
func (e *Editor) Remove(path string) { e.removes = append(e.removes, path) }

// Commit applies every staged add and remove to the underlying index.
func (e *Editor) Commit() {
	for _, path := range e.removes {
		e.idx.RemoveEntry(path)
	}
	for _, entry := range e.adds {
		e.idx.SetEntry(entry)
	}
}
