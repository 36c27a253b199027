package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExtractStats summarizes an extraction.
type ExtractStats struct {
	Files    int
	Dirs     int
	Symlinks int
	Bytes    int64
}

// Extract unpacks a .tar.gz archive into targetDir, which must exist.
// Existing files are overwritten without confirmation; entries whose path
// would land outside targetDir are rejected.
func Extract(ctx context.Context, archivePath, targetDir string) (ExtractStats, error) {
	var stats ExtractStats

	f, err := os.Open(archivePath)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return stats, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	root, err := filepath.Abs(targetDir)
	if err != nil {
		return stats, err
	}

	type dirTime struct {
		path  string
		mtime time.Time
	}
	var dirs []dirTime

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading archive: %w", err)
		}

		dest, err := safeJoin(root, hdr.Name)
		if err != nil {
			return stats, err
		}
		if err := noSymlinkParents(root, dest); err != nil {
			return stats, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, dirMode(hdr)); err != nil {
				return stats, err
			}
			dirs = append(dirs, dirTime{dest, hdr.ModTime})
			stats.Dirs++

		case tar.TypeReg:
			if err := extractFile(tr, dest, hdr); err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += hdr.Size

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return stats, err
			}
			if err := os.RemoveAll(dest); err != nil {
				return stats, err
			}
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return stats, fmt.Errorf("creating symlink %s: %w", hdr.Name, err)
			}
			stats.Symlinks++

		default:
			// hard links and special files are never written by the builder
		}
	}

	// Directory mtimes last, since populating a directory bumps its mtime.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Chtimes(dirs[i].path, dirs[i].mtime, dirs[i].mtime)
	}
	return stats, nil
}

// extractFile writes the entry to a temp file beside dest and renames it
// into place. Rename replaces a read-only file or a symlink left by an
// earlier entry or restore without writing through it.
func extractFile(r io.Reader, dest string, hdr *tar.Header) (err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if info, err := os.Lstat(dest); err == nil && info.IsDir() {
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
	}

	out, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".restore-*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", hdr.Name, err)
	}
	tmp := out.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := io.CopyN(out, r, hdr.Size); err != nil {
		_ = out.Close()
		return fmt.Errorf("extracting %s: %w", hdr.Name, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, os.FileMode(hdr.Mode).Perm()); err != nil {
		return err
	}
	_ = os.Chtimes(tmp, hdr.ModTime, hdr.ModTime)
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("replacing %s: %w", hdr.Name, err)
	}
	return nil
}

// safeJoin resolves name under root and refuses anything that escapes it.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("archive entry %q has an absolute path", name)
	}
	dest := filepath.Join(root, clean)
	if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the target directory", name)
	}
	return dest, nil
}

// noSymlinkParents rejects a destination reached through a symlink that an
// earlier entry planted inside root.
func noSymlinkParents(root, dest string) error {
	rel, err := filepath.Rel(root, filepath.Dir(dest))
	if err != nil || rel == "." {
		return err
	}
	p := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		p = filepath.Join(p, part)
		info, err := os.Lstat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("archive entry %s would be written through symlink %s", dest, p)
		}
	}
	return nil
}

func dirMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode).Perm()
	// keep directories traversable for the restoring user
	return mode | 0o700
}
