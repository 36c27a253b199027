package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/raoulx24/dir-archiver/internal/fs"
)

// tarGzWriter chains file -> gzip -> tar and closes them in reverse order.
type tarGzWriter struct {
	file    *os.File
	tw      *tar.Writer
	closers []io.Closer
}

func newTarGzWriter(path string) (*tarGzWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("creating archive file: %w", err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	return &tarGzWriter{
		file:    f,
		tw:      tw,
		closers: []io.Closer{gz, tw},
	}, nil
}

// Close flushes tar and gzip trailers, syncs, and closes the file, returning
// the first error encountered.
func (w *tarGzWriter) Close() error {
	var firstErr error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := w.file.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// add writes one walked item. For regular files it reports whether the file
// changed while it was being read.
func (w *tarGzWriter) add(ctx context.Context, it item) (changed bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	hdr, err := tar.FileInfoHeader(it.info, it.link)
	if err != nil {
		return false, fmt.Errorf("tar header for %s: %w", it.rel, err)
	}
	hdr.Name = it.rel
	if it.info.IsDir() {
		hdr.Name += "/"
	}
	hdr.Format = tar.FormatPAX

	if err := w.tw.WriteHeader(hdr); err != nil {
		return false, fmt.Errorf("writing header for %s: %w", it.rel, err)
	}
	if !it.info.Mode().IsRegular() {
		return false, nil
	}

	f, err := os.Open(it.abs)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", it.rel, err)
	}
	defer f.Close()

	n, err := io.CopyN(w.tw, f, hdr.Size)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("archiving %s: %w", it.rel, err)
	}
	if n < hdr.Size {
		// Truncated under us; pad so the archive stays well-formed.
		if _, err := io.CopyN(w.tw, zeroReader{}, hdr.Size-n); err != nil {
			return false, fmt.Errorf("padding %s: %w", it.rel, err)
		}
		return true, nil
	}

	now, err := os.Stat(it.abs)
	if err != nil {
		return true, nil
	}
	return fs.Changed(it.state, fs.FromFileInfo(it.abs, now)), nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
