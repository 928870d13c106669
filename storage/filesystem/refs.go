package filesystem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/refstore"
)

func billyAppendFlags() int { return os.O_WRONLY | os.O_CREATE | os.O_APPEND }

const symrefPrefix = "ref: "

// RefBackend is the filesystem refstore.Backend: one file per loose ref
// (under refs/, plus the handful of top-level specials like HEAD), a
// packed-refs fallback tier for refs Git has compacted, and
// append-only reflog files under logs/. Mutation uses a lock file next
// to the target (".lock" suffix) plus rename, matching Git's own
// atomicity mechanism. Grounded on go-git's
// storage/filesystem/dotgit package.
type RefBackend struct {
	fs billy.Filesystem

	mu         sync.Mutex
	packedRefs map[string]hash.ID // loaded on first use, then not reloaded
	loaded     bool
}

// NewRefBackend wraps fs (rooted at the repository's ".git" directory).
func NewRefBackend(fs billy.Filesystem) *RefBackend { return &RefBackend{fs: fs} }

func (b *RefBackend) ReadRef(name string) (refstore.Ref, error) {
	f, err := b.fs.Open(refPath(b.fs, name))
	if err == nil {
		defer f.Close()
		data, rerr := io.ReadAll(f)
		if rerr != nil {
			return refstore.Ref{}, core.Wrap(core.KindIO, "read ref", rerr).WithRef(name)
		}
		return parseRefFile(name, data)
	}

	id, ok, perr := b.lookupPacked(name)
	if perr != nil {
		return refstore.Ref{}, perr
	}
	if ok {
		return refstore.Ref{Name: name, ID: id}, nil
	}
	return refstore.Ref{}, core.New(core.KindNotFound, "ref not found").WithRef(name)
}

func parseRefFile(name string, data []byte) (refstore.Ref, error) {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, symrefPrefix) {
		return refstore.Ref{Name: name, Target: strings.TrimSpace(s[len(symrefPrefix):])}, nil
	}
	id, ok := hash.FromHex(s)
	if !ok {
		return refstore.Ref{}, core.New(core.KindCorrupt, "malformed ref file").WithRef(name)
	}
	return refstore.Ref{Name: name, ID: id}, nil
}

func (b *RefBackend) lookupPacked(name string) (hash.ID, bool, error) {
	if err := b.ensurePackedLoaded(); err != nil {
		return hash.ID{}, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.packedRefs[name]
	return id, ok, nil
}

func (b *RefBackend) ensurePackedLoaded() error {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	m := map[string]hash.ID{}
	f, err := b.fs.Open(packedRefs)
	if err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := sc.Text()
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
				continue
			}
			fields := strings.SplitN(line, " ", 2)
			if len(fields) != 2 {
				continue
			}
			if id, ok := hash.FromHex(fields[0]); ok {
				m[fields[1]] = id
			}
		}
	}

	b.mu.Lock()
	b.packedRefs = m
	b.loaded = true
	b.mu.Unlock()
	return nil
}

func (b *RefBackend) ListRefs(prefix string) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	var walk func(dir string)
	walk = func(dir string) {
		entries, err := b.fs.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			full := b.fs.Join(dir, e.Name())
			if e.IsDir() {
				walk(full)
				continue
			}
			if strings.HasPrefix(full, prefix) && !seen[full] {
				seen[full] = true
				out = append(out, full)
			}
		}
	}
	walk(refsDir)

	if err := b.ensurePackedLoaded(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	for name := range b.packedRefs {
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	b.mu.Unlock()

	return out, nil
}

func (b *RefBackend) CompareAndSwap(name string, old *hash.ID, new refstore.Ref) error {
	cur, err := b.ReadRef(name)
	exists := err == nil
	switch {
	case old == nil && exists && !cur.IsSymbolic():
		return core.New(core.KindConflict, "ref already exists").WithRef(name)
	case old != nil:
		if !exists || cur.IsSymbolic() || cur.ID != *old {
			return core.New(core.KindConflict, "ref compare-and-swap mismatch").WithRef(name)
		}
	}

	path := refPath(b.fs, name)
	dir := b.fs.Join(strings.Split(name, "/")[:max(0, len(strings.Split(name, "/"))-1)]...)
	if dir != "" {
		if err := b.fs.MkdirAll(dir, 0755); err != nil {
			return core.Wrap(core.KindIO, "create ref directory", err).WithRef(name)
		}
	}

	lockPath := path + ".lock"
	lock, err := b.fs.Create(lockPath)
	if err != nil {
		return core.Wrap(core.KindIO, "create ref lock", err).WithRef(name)
	}
	content := refFileContent(new)
	if _, err := lock.Write([]byte(content)); err != nil {
		lock.Close()
		b.fs.Remove(lockPath)
		return core.Wrap(core.KindIO, "write ref lock", err).WithRef(name)
	}
	if err := lock.Close(); err != nil {
		b.fs.Remove(lockPath)
		return core.Wrap(core.KindIO, "close ref lock", err).WithRef(name)
	}
	if err := b.fs.Rename(lockPath, path); err != nil {
		b.fs.Remove(lockPath)
		return core.Wrap(core.KindIO, "finalize ref write", err).WithRef(name)
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func refFileContent(r refstore.Ref) string {
	if r.IsSymbolic() {
		return symrefPrefix + r.Target + "\n"
	}
	return r.ID.String() + "\n"
}

func (b *RefBackend) RemoveRef(name string) error {
	path := refPath(b.fs, name)
	if _, err := b.fs.Stat(path); err == nil {
		if err := b.fs.Remove(path); err != nil {
			return core.Wrap(core.KindIO, "remove ref", err).WithRef(name)
		}
		return nil
	}
	if ok, _, _ := b.lookupPacked(name); ok {
		return core.New(core.KindPrecondition, "removing a packed ref requires rewriting packed-refs, not supported by this backend yet").WithRef(name)
	}
	return core.New(core.KindNotFound, "ref not found").WithRef(name)
}

func (b *RefBackend) AppendReflog(name string, e refstore.ReflogEntry) error {
	path := reflogPath(b.fs, name)
	dir := b.fs.Join(strings.Split(strings.TrimSuffix(path, "/"+lastSegment(path)), "/")...)
	if err := b.fs.MkdirAll(dir, 0755); err != nil {
		return core.Wrap(core.KindIO, "create reflog directory", err).WithRef(name)
	}
	f, err := b.fs.OpenFile(path, billyAppendFlags(), 0644)
	if err != nil {
		return core.Wrap(core.KindIO, "open reflog", err).WithRef(name)
	}
	defer f.Close()

	line := formatReflogLine(e)
	_, err = f.Write([]byte(line))
	return err
}

func lastSegment(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// formatReflogLine renders one reflog entry in Git's own
// "<old> <new> <ident> <epoch> <tzoffset>\t<message>\n" form.
func formatReflogLine(e refstore.ReflogEntry) string {
	when := e.Who.When
	if when == 0 {
		when = time.Now().Unix()
	}
	off := e.Who.TZOffsetMinutes
	sign := "+"
	if off < 0 {
		sign = "-"
		off = -off
	}
	tz := fmt.Sprintf("%s%02d%02d", sign, off/60, off%60)
	ident := fmt.Sprintf("%s <%s>", e.Who.Name, e.Who.Email)
	return fmt.Sprintf("%s %s %s %s %s\t%s\n", e.Old.String(), e.New.String(), ident, strconv.FormatInt(when, 10), tz, e.Message)
}

func (b *RefBackend) ReadReflog(name string) ([]refstore.ReflogEntry, error) {
	f, err := b.fs.Open(reflogPath(b.fs, name))
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var out []refstore.ReflogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		e, ok := parseReflogLine(sc.Text())
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func parseReflogLine(line string) (refstore.ReflogEntry, bool) {
	tabIdx := strings.IndexByte(line, '\t')
	head := line
	msg := ""
	if tabIdx >= 0 {
		head = line[:tabIdx]
		msg = line[tabIdx+1:]
	}
	fields := strings.Fields(head)
	if len(fields) < 2 {
		return refstore.ReflogEntry{}, false
	}
	old, ok1 := hash.FromHex(fields[0])
	new, ok2 := hash.FromHex(fields[1])
	if !ok1 || !ok2 {
		return refstore.ReflogEntry{}, false
	}
	return refstore.ReflogEntry{Old: old, New: new, Message: msg}, true
}
