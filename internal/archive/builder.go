// Package archive produces full and incremental .tar.gz archives of a source
// tree and extracts them again.
package archive

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/digest"
	"github.com/raoulx24/dir-archiver/internal/fs"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Options configures a Builder.
type Options struct {
	Destination string
	MinFreeMB   int64
	Namer       snapshot.Namer

	FS       fs.FS            // nil = OS filesystem
	Verifier *digest.Verifier // nil = digest.New(FS)
	Log      logging.Logger   // nil = discard
	Now      func() time.Time // nil = time.Now
}

// Builder writes archives into a single destination directory.
type Builder struct {
	dest      string
	minFreeMB int64
	namer     snapshot.Namer
	fs        fs.FS
	verifier  *digest.Verifier
	log       logging.Logger
	now       func() time.Time
}

// Result describes an archive that was written, or would have been in
// dry-run mode (Entry.Path is then the path it would have used).
type Result struct {
	Entry   snapshot.Entry
	DryRun  bool
	Files   int   // regular files included
	Bytes   int64 // their combined size
	Changed int   // files that changed while being read
}

func New(opts Options) *Builder {
	b := &Builder{
		dest:      opts.Destination,
		minFreeMB: opts.MinFreeMB,
		namer:     opts.Namer,
		fs:        opts.FS,
		verifier:  opts.Verifier,
		log:       opts.Log,
		now:       opts.Now,
	}
	if b.fs == nil {
		b.fs = fs.New()
	}
	if b.verifier == nil {
		b.verifier = digest.New(b.fs)
	}
	if b.log == nil {
		b.log = logging.Nop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// CheckSpace fails with apperr.ErrInsufficientSpace when the destination
// filesystem has less than the configured minimum available. It writes
// nothing, so it is safe to call before the destination exists.
func (b *Builder) CheckSpace() error {
	if b.minFreeMB <= 0 {
		return nil
	}
	free, err := b.fs.FreeSpaceMB(b.dest)
	if err != nil {
		return fmt.Errorf("checking free space: %w", err)
	}
	if free < 0 {
		b.log.Warn("free space unknown on this platform, skipping check", "destination", b.dest)
		return nil
	}
	if free < b.minFreeMB {
		return fmt.Errorf("%w: %d MB available on %s, %d MB required",
			apperr.ErrInsufficientSpace, free, b.dest, b.minFreeMB)
	}
	b.log.Debug("free space ok", "available_mb", free, "required_mb", b.minFreeMB)
	return nil
}

// CreateFull archives the whole source tree minus excludes.
func (b *Builder) CreateFull(ctx context.Context, sourceDir string, excludes []string, dryRun bool) (Result, error) {
	return b.create(ctx, sourceDir, excludes, snapshot.KindFull, "", dryRun)
}

// CreateIncremental archives the regular files that changed since the state
// recorded at statePath, then records the new state. Directories and
// symlinks are always included so extraction recreates the layout.
func (b *Builder) CreateIncremental(ctx context.Context, sourceDir string, excludes []string, statePath string, dryRun bool) (Result, error) {
	if statePath == "" {
		return Result{}, fmt.Errorf("%w: incremental backup needs a snapshot state path", apperr.ErrInvalidArguments)
	}
	return b.create(ctx, sourceDir, excludes, snapshot.KindIncremental, statePath, dryRun)
}

func (b *Builder) create(ctx context.Context, sourceDir string, excludes []string, kind snapshot.Kind, statePath string, dryRun bool) (Result, error) {
	root, err := b.checkSource(sourceDir)
	if err != nil {
		return Result{}, err
	}
	matcher, err := NewMatcher(excludes)
	if err != nil {
		return Result{}, err
	}
	if err := b.CheckSpace(); err != nil {
		return Result{}, err
	}

	var prev *State
	if kind == snapshot.KindIncremental {
		if prev, err = LoadState(statePath); err != nil {
			return Result{}, fmt.Errorf("%w: %v", apperr.ErrArchiveCreation, err)
		}
		if prev.Source != "" && prev.Source != root {
			b.log.Warn("snapshot state belongs to another source, starting over",
				"state_source", prev.Source, "source", root)
			prev.Files = map[string]FileState{}
		}
	}

	ts := b.now()
	name := b.namer.Name(ts, kind)
	final := filepath.Join(b.dest, name)
	entry := snapshot.Entry{Name: name, Path: final, Timestamp: ts, Kind: kind}

	// destination inside the source must not archive itself
	skip := ""
	if destAbs, err := filepath.Abs(b.dest); err == nil {
		skip = destAbs
	}

	next := &State{Source: root, UpdatedAt: ts, Archive: name, Files: map[string]FileState{}}
	include := func(it item) bool {
		if !it.info.Mode().IsRegular() {
			return true
		}
		next.Files[it.rel] = fileStateOf(it.state)
		if prev == nil {
			return true
		}
		old, seen := prev.Files[it.rel]
		return !seen || fs.Changed(old.info(it.abs), it.state)
	}

	if dryRun {
		res := Result{Entry: entry, DryRun: true}
		err := walkSource(ctx, root, matcher, skip, func(it item) error {
			if include(it) && it.info.Mode().IsRegular() {
				res.Files++
				res.Bytes += it.info.Size()
			}
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("%w: scanning %s: %v", apperr.ErrArchiveCreation, root, err)
		}
		b.log.Info("dry run: would create archive",
			"archive", final, "kind", string(kind), "files", res.Files, "bytes", res.Bytes)
		return res, nil
	}

	if err := b.fs.MkdirAll(b.dest); err != nil {
		return Result{}, fmt.Errorf("%w: creating destination: %v", apperr.ErrArchiveCreation, err)
	}
	if _, err := b.fs.Lstat(final); err == nil {
		return Result{}, fmt.Errorf("%w: %s already exists", apperr.ErrArchiveCreation, name)
	}

	res := Result{Entry: entry}
	tmp := filepath.Join(b.dest, "."+name+".partial")
	if err := b.write(ctx, root, matcher, skip, tmp, include, &res); err != nil {
		_ = b.fs.Remove(tmp)
		return Result{}, err
	}

	if err := b.fs.Rename(ctx, tmp, final); err != nil {
		_ = b.fs.Remove(tmp)
		return Result{}, fmt.Errorf("%w: finalizing %s: %v", apperr.ErrArchiveCreation, name, err)
	}

	rec, err := b.verifier.Stamp(ctx, final)
	if err != nil {
		b.discard(final)
		return Result{}, fmt.Errorf("%w: stamping %s: %v", apperr.ErrArchiveCreation, name, err)
	}
	res.Entry.Digest = rec.Hex
	if info, err := b.fs.Stat(final); err == nil {
		res.Entry.Size = info.Size
	}

	if kind == snapshot.KindIncremental {
		if err := SaveState(ctx, b.fs, statePath, next); err != nil {
			// without the new state the archive cannot anchor the next pass
			b.discard(final)
			return Result{}, fmt.Errorf("%w: %v", apperr.ErrArchiveCreation, err)
		}
	}

	b.log.Info("archive created", "archive", final, "kind", string(kind),
		"files", res.Files, "bytes", res.Bytes, "size", res.Entry.Size)
	return res, nil
}

func (b *Builder) write(ctx context.Context, root string, m *Matcher, skip, tmp string, include func(item) bool, res *Result) (err error) {
	w, err := newTarGzWriter(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrArchiveCreation, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing archive: %v", apperr.ErrArchiveCreation, cerr)
		}
	}()

	walkErr := walkSource(ctx, root, m, skip, func(it item) error {
		if !include(it) {
			return nil
		}
		changed, err := w.add(ctx, it)
		if err != nil {
			return err
		}
		if it.info.Mode().IsRegular() {
			res.Files++
			res.Bytes += it.info.Size()
		}
		if changed {
			res.Changed++
			b.log.Warn("file changed while archiving", "file", it.rel)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return walkErr
		}
		return fmt.Errorf("%w: %v", apperr.ErrArchiveCreation, walkErr)
	}
	return nil
}

// discard removes an archive together with its digest record.
func (b *Builder) discard(archivePath string) {
	_ = b.fs.Remove(digest.SidecarPath(archivePath))
	_ = b.fs.Remove(archivePath)
}

func (b *Builder) checkSource(sourceDir string) (string, error) {
	if sourceDir == "" {
		return "", fmt.Errorf("%w: no source directory given", apperr.ErrInvalidArguments)
	}
	root, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperr.ErrSourceNotFound, sourceDir, err)
	}
	info, err := b.fs.Stat(root)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", apperr.ErrSourceNotFound, sourceDir)
		}
		return "", fmt.Errorf("%w: %s: %v", apperr.ErrSourceNotFound, sourceDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", apperr.ErrSourceNotFound, sourceDir)
	}
	f, err := os.Open(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not readable: %v", apperr.ErrSourceNotFound, sourceDir, err)
	}
	_ = f.Close()
	return root, nil
}
