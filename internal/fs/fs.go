// Package fs defines the filesystem abstraction used by dir-archiver.
// It provides the FS interface and the FileInfo type shared across the system.
package fs

import (
	"context"
	"os"
	"time"
)

type FileInfo struct {
	Path  string
	Size  int64
	MTime time.Time
	Inode uint64
	Mode  os.FileMode
}

func (f FileInfo) IsDir() bool     { return f.Mode.IsDir() }
func (f FileInfo) IsRegular() bool { return f.Mode.IsRegular() }

// FromFileInfo captures the identity fields of info, which may come from
// either Stat or Lstat.
func FromFileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:  path,
		Size:  info.Size(),
		MTime: info.ModTime(),
		Inode: inodeOf(info),
		Mode:  info.Mode(),
	}
}

type FS interface {
	Stat(path string) (FileInfo, error)
	// Lstat does not follow a final symlink.
	Lstat(path string) (FileInfo, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	WriteFileAtomic(ctx context.Context, path string, data []byte, perm os.FileMode) error
	MkdirAll(path string) error
	Remove(path string) error

	// FreeSpaceMB reports the space available to unprivileged users on the
	// filesystem holding path, or -1 when the platform cannot tell.
	FreeSpaceMB(path string) (int64, error)
}
