package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"invalid arguments", ErrInvalidArguments, ExitInvalidArguments},
		{"lock contention", fmt.Errorf("acquire: %w", ErrLockContention), ExitLockContention},
		{"space", fmt.Errorf("check: %w", ErrInsufficientSpace), ExitInsufficientSpace},
		{"source", ErrSourceNotFound, ExitSourceNotFound},
		{"archive", fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrArchiveCreation)), ExitArchiveFailed},
		{"digest", ErrDigestMismatch, ExitDigestMismatch},
		{"not found", ErrNotFound, ExitRestoreFailed},
		{"restore target", ErrRestoreTarget, ExitRestoreFailed},
		{"cancelled", fmt.Errorf("walk: %w", context.Canceled), ExitInterrupted},
		{"joined", errors.Join(errors.New("x"), ErrDigestMismatch), ExitDigestMismatch},
		{"other", errors.New("boom"), ExitFailure},
		{"config missing is not fatal by itself", ErrConfigMissing, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitCodesAreDistinct(t *testing.T) {
	seen := map[int]bool{}
	for _, c := range []int{ExitOK, ExitFailure, ExitInvalidArguments, ExitLockContention,
		ExitInsufficientSpace, ExitSourceNotFound, ExitArchiveFailed, ExitDigestMismatch,
		ExitRestoreFailed, ExitInterrupted} {
		assert.False(t, seen[c], "duplicate exit code %d", c)
		seen[c] = true
	}
}
