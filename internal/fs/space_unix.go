//go:build unix

package fs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// space_unix.go queries statfs(2) for the blocks available to unprivileged users.

func freeSpaceMB(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(st.Bavail) * int64(st.Bsize) / (1024 * 1024), nil
}
