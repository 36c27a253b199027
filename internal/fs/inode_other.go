//go:build !unix

package fs

import "os"

// provides a stub for inode extraction on non-Unix platforms.
// Windows does not expose POSIX inodes, so this implementation returns zero.

func inodeOf(info os.FileInfo) uint64 {
	// Windows doesn't expose POSIX inodes in the same way.
	// fs.Changed ignores a zero inode, so size and mtime decide.
	_ = info
	return 0
}
