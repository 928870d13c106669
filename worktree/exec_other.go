//go:build !unix

package worktree

// hasExecBit has no raw-mode fallback outside unix; billy's
// os.FileInfo translation is trusted as-is on these platforms.
func hasExecBit(absPath string) (bool, error) { return false, nil }
