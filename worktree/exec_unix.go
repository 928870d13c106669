//go:build unix

package worktree

import "golang.org/x/sys/unix"

// hasExecBit stats absPath directly via the raw syscall mode bits
// rather than through billy's os.FileInfo translation.
func hasExecBit(absPath string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(absPath, &st); err != nil {
		return false, err
	}
	return st.Mode&0111 != 0, nil
}
