// Package digest stamps archives with a SHA-256 sidecar record and verifies
// them against it.
//
// The sidecar sits next to the archive as <archive>.sha256 and uses the
// sha256sum(1) line format, so `sha256sum -c` can check it by hand.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/fs"
)

// Ext is the suffix of digest records.
const Ext = ".sha256"

// Status is the outcome of a verification.
type Status int

const (
	Valid Status = iota
	Mismatch
	Missing
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Mismatch:
		return "mismatch"
	case Missing:
		return "missing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrMismatch = fmt.Errorf("%w: content does not match record", apperr.ErrDigestMismatch)
	ErrMissing  = fmt.Errorf("%w: no digest record", apperr.ErrDigestMismatch)
)

// Record is a persisted digest.
type Record struct {
	Archive string
	Sidecar string
	Hex     string
}

// SidecarPath returns the digest record path for an archive.
func SidecarPath(archivePath string) string {
	return archivePath + Ext
}

// Verifier computes and checks digests.
type Verifier struct {
	fs fs.FS
}

func New(filesystem fs.FS) *Verifier {
	if filesystem == nil {
		filesystem = fs.New()
	}
	return &Verifier{fs: filesystem}
}

// Stamp hashes the archive and writes its sidecar atomically.
func (v *Verifier) Stamp(ctx context.Context, archivePath string) (Record, error) {
	sum, err := Sum(archivePath)
	if err != nil {
		return Record{}, err
	}

	rec := Record{Archive: archivePath, Sidecar: SidecarPath(archivePath), Hex: sum}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(archivePath))
	if err := v.fs.WriteFileAtomic(ctx, rec.Sidecar, []byte(line), 0o644); err != nil {
		return Record{}, fmt.Errorf("writing digest record: %w", err)
	}
	return rec, nil
}

// Verify recomputes the archive digest and compares it with the record.
// The error is only set for I/O failures other than a missing record.
func (v *Verifier) Verify(archivePath string) (Status, error) {
	want, name, err := ReadRecord(SidecarPath(archivePath))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return Missing, nil
		}
		return Mismatch, err
	}
	if want == "" || (name != "" && name != filepath.Base(archivePath)) {
		return Mismatch, nil
	}

	got, err := Sum(archivePath)
	if err != nil {
		return Mismatch, err
	}
	if !strings.EqualFold(got, want) {
		return Mismatch, nil
	}
	return Valid, nil
}

// Check is Verify folded into a single error: nil only when Valid.
func (v *Verifier) Check(archivePath string) error {
	status, err := v.Verify(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrDigestMismatch, filepath.Base(archivePath), err)
	}
	switch status {
	case Valid:
		return nil
	case Missing:
		return fmt.Errorf("%w: %s", ErrMissing, filepath.Base(archivePath))
	default:
		return fmt.Errorf("%w: %s", ErrMismatch, filepath.Base(archivePath))
	}
}

// Sum returns the hex SHA-256 of the file's raw bytes.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadRecord parses a sidecar and returns the digest and the file name it
// was recorded for (name may be empty for bare-digest records).
func ReadRecord(sidecarPath string) (sum, name string, err error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", "", err
	}
	fields := strings.Fields(string(data))
	switch len(fields) {
	case 0:
		return "", "", nil
	case 1:
		return fields[0], "", nil
	default:
		// sha256sum marks binary mode with a leading '*'
		return fields[0], strings.TrimPrefix(fields[1], "*"), nil
	}
}
