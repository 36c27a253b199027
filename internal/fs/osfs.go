package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

type OSFS struct{}

// the concrete implementation of FS backed by the local OS filesystem.
// Platform-specific details (inode extraction, statfs) are handled in build-tagged files.

func New() *OSFS {
	return &OSFS{}
}

func (o *OSFS) Stat(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FromFileInfo(path, st), nil
}

func (o *OSFS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Remove deletes path; a path that is already gone is not an error.
func (o *OSFS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (o *OSFS) Lstat(path string) (FileInfo, error) {
	st, err := os.Lstat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FromFileInfo(path, st), nil
}

func (o *OSFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return renameWithRetry(ctx, oldPath, newPath)
}

func (o *OSFS) WriteFileAtomic(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	return writeAtomic(ctx, path, data, perm)
}

func (o *OSFS) FreeSpaceMB(path string) (int64, error) {
	return freeSpaceMB(nearestExisting(path))
}

// nearestExisting walks up from path until it finds something that exists,
// so space can be probed for a destination that has not been created yet.
func nearestExisting(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
