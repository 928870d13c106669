// Package filesystem implements the on-disk ("dotgit") backing for C1,
// C2 and C5: loose objects under objects/<xx>/<rest38>, sealed pack
// pairs under objects/pack/, refs as one-file-per-ref under refs/ with
// a packed-refs fallback tier, and reflogs under logs/refs/. Grounded
// on go-git's storage/filesystem and storage/filesystem/dotgit
// packages, built on go-billy/v5 so the backing filesystem (OS, chroot,
// in-memory) is pluggable per spec.md's "Files capability".
package filesystem

import (
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/statewalker/vcs-sub002/hash"
)

const (
	objectsDir  = "objects"
	packDir     = "objects/pack"
	refsDir     = "refs"
	logsDir     = "logs"
	packedRefs  = "packed-refs"
)

// looseObjectPath returns the two-level fan-out path for id under
// objects/, e.g. "objects/af/0123...(38 hex chars)".
func looseObjectPath(fs billy.Filesystem, id hash.ID) string {
	h := id.String()
	return fs.Join(objectsDir, h[:2], h[2:])
}

// refPath returns the loose-ref file path for a ref name, e.g.
// "refs/heads/main" or "HEAD".
func refPath(fs billy.Filesystem, name string) string {
	return fs.Join(strings.Split(name, "/")...)
}

// reflogPath returns the reflog file path for a ref name, e.g.
// "logs/refs/heads/main" or "logs/HEAD".
func reflogPath(fs billy.Filesystem, name string) string {
	return fs.Join(append([]string{logsDir}, strings.Split(name, "/")...)...)
}

func packPath(fs billy.Filesystem, packName string) string {
	return fs.Join(packDir, packName+".pack")
}

func idxPath(fs billy.Filesystem, packName string) string {
	return fs.Join(packDir, packName+".idx")
}
