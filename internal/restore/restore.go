// Package restore extracts a named archive from the backup destination.
package restore

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/archive"
	"github.com/raoulx24/dir-archiver/internal/digest"
	"github.com/raoulx24/dir-archiver/internal/fs"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Engine resolves archive names in one destination directory.
type Engine struct {
	dest     string
	fs       fs.FS
	verifier *digest.Verifier
	log      logging.Logger
}

func New(destination string, filesystem fs.FS, verifier *digest.Verifier, log logging.Logger) *Engine {
	if filesystem == nil {
		filesystem = fs.New()
	}
	if verifier == nil {
		verifier = digest.New(filesystem)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{dest: destination, fs: filesystem, verifier: verifier, log: log}
}

// Resolve maps an archive name, with or without the .tar.gz suffix, to its
// path in the destination.
func (e *Engine) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid archive name %q", apperr.ErrInvalidArguments, name)
	}
	if !strings.HasSuffix(name, snapshot.ArchiveExt) {
		name += snapshot.ArchiveExt
	}

	path := filepath.Join(e.dest, name)
	info, err := e.fs.Stat(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s in %s", apperr.ErrNotFound, name, e.dest)
		}
		return "", fmt.Errorf("%w: %s: %v", apperr.ErrNotFound, name, err)
	}
	if !info.IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", apperr.ErrNotFound, name)
	}
	return path, nil
}

// Restore extracts the named archive into targetDir, creating it when
// missing. With verify set the digest record must match first.
func (e *Engine) Restore(ctx context.Context, name, targetDir string, verify bool) (archive.ExtractStats, error) {
	if targetDir == "" {
		return archive.ExtractStats{}, fmt.Errorf("%w: no restore target given", apperr.ErrInvalidArguments)
	}
	path, err := e.Resolve(name)
	if err != nil {
		return archive.ExtractStats{}, err
	}

	if verify {
		if err := e.verifier.Check(path); err != nil {
			return archive.ExtractStats{}, err
		}
		e.log.Debug("digest verified", "archive", path)
	} else {
		e.log.Warn("restoring without digest verification", "archive", path)
	}

	if err := e.fs.MkdirAll(targetDir); err != nil {
		return archive.ExtractStats{}, fmt.Errorf("%w: %s: %v", apperr.ErrRestoreTarget, targetDir, err)
	}
	if info, err := e.fs.Stat(targetDir); err != nil || !info.IsDir() {
		return archive.ExtractStats{}, fmt.Errorf("%w: %s is not a directory", apperr.ErrRestoreTarget, targetDir)
	}

	e.log.Info("restoring archive", "archive", path, "target", targetDir)
	stats, err := archive.Extract(ctx, path, targetDir)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return stats, err
		}
		return stats, fmt.Errorf("%w: extracting %s: %v", apperr.ErrRestoreTarget, filepath.Base(path), err)
	}
	e.log.Info("restore complete", "archive", path, "target", targetDir,
		"files", stats.Files, "dirs", stats.Dirs, "symlinks", stats.Symlinks, "bytes", stats.Bytes)
	return stats, nil
}
