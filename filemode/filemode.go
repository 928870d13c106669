// Package filemode defines the small fixed set of Git tree-entry modes.
// Grounded on go-git's plumbing/filemode package, trimmed to the five
// modes spec.md names.
package filemode

import (
	"fmt"
	"strconv"
)

// FileMode is one of the five octal mode values Git allows in a tree
// entry.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0040000
	Regular    FileMode = 0100644
	Executable FileMode = 0100755
	Symlink    FileMode = 0120000
	Submodule  FileMode = 0160000
)

// String renders the mode as six zero-padded octal digits ("040000" for
// Dir). Tree objects are written without that padding ("40000"); see
// object.Tree.Encode.
func (m FileMode) String() string { return fmt.Sprintf("%06o", uint32(m)) }

// IsDir reports whether m denotes a subtree.
func (m FileMode) IsDir() bool { return m == Dir }

// IsRegular reports whether m is a regular (executable or not) blob.
func (m FileMode) IsRegular() bool { return m == Regular || m == Executable }

// Parse parses a mode from its octal text form, accepting both the
// six-digit form ("100644", "040000") and the unpadded "40000" that tree
// objects use for directories.
func Parse(s string) (FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("filemode: invalid mode %q: %w", s, err)
	}
	m := FileMode(v)
	switch m {
	case Empty, Dir, Regular, Executable, Symlink, Submodule:
		return m, nil
	default:
		return 0, fmt.Errorf("filemode: unsupported mode %06o", v)
	}
}
