// Package apperr defines the failure taxonomy shared by every component and
// maps it onto process exit codes.
package apperr

import (
	"context"
	"errors"
)

var (
	ErrConfigMissing     = errors.New("config missing")
	ErrSourceNotFound    = errors.New("source not found")
	ErrLockContention    = errors.New("another backup is already running")
	ErrInsufficientSpace = errors.New("insufficient free space")
	ErrArchiveCreation   = errors.New("archive creation failed")
	ErrDigestMismatch    = errors.New("digest mismatch")
	ErrRestoreTarget     = errors.New("restore target unreachable")
	ErrInvalidArguments  = errors.New("invalid arguments")
	ErrNotFound          = errors.New("backup not found")
)

// Exit codes. 1 is reserved for failures outside the taxonomy.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitInvalidArguments  = 2
	ExitLockContention    = 3
	ExitInsufficientSpace = 4
	ExitSourceNotFound    = 5
	ExitArchiveFailed     = 6
	ExitDigestMismatch    = 7
	ExitRestoreFailed     = 8
	ExitInterrupted       = 130
)

// ExitCode maps err to the process status reported by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidArguments):
		return ExitInvalidArguments
	case errors.Is(err, ErrLockContention):
		return ExitLockContention
	case errors.Is(err, ErrInsufficientSpace):
		return ExitInsufficientSpace
	case errors.Is(err, ErrSourceNotFound):
		return ExitSourceNotFound
	case errors.Is(err, ErrDigestMismatch):
		return ExitDigestMismatch
	case errors.Is(err, ErrArchiveCreation):
		return ExitArchiveFailed
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRestoreTarget):
		return ExitRestoreFailed
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
