package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/dir-archiver/internal/apperr"
)

func TestObserveSuccessfulBackup(t *testing.T) {
	r := New("")
	start := time.Unix(1_700_000_000, 0)
	r.Observe(Outcome{
		Operation:   "backup",
		Start:       start,
		End:         start.Add(90 * time.Second),
		ArchiveSize: 4096,
		Kept:        3,
		Deleted:     7,
		Archives:    3,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.success.WithLabelValues("backup")))
	assert.Equal(t, 90.0, testutil.ToFloat64(r.duration.WithLabelValues("backup")))
	assert.Equal(t, float64(start.Add(90*time.Second).Unix()), testutil.ToFloat64(r.lastSuccess.WithLabelValues("backup")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(r.archiveSize.WithLabelValues("backup")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.deleted.WithLabelValues("backup")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.exitCode.WithLabelValues("backup")))

	// no path, nothing written
	assert.NoError(t, r.Write())
}

func TestObserveFailure(t *testing.T) {
	r := New("")
	now := time.Now()
	err := fmt.Errorf("wrapped: %w", apperr.ErrLockContention)
	r.Observe(Outcome{Operation: "backup", Start: now, End: now, Err: err})

	assert.Equal(t, 0.0, testutil.ToFloat64(r.success.WithLabelValues("backup")))
	assert.Equal(t, float64(apperr.ExitLockContention), testutil.ToFloat64(r.exitCode.WithLabelValues("backup")))
	// no success series for an operation that never succeeded
	assert.Equal(t, 0, testutil.CollectAndCount(r.lastSuccess))
}

func TestWriteTextfilePerOperation(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "dir_archiver.prom"))
	now := time.Now()
	r.Observe(Outcome{Operation: "backup", Start: now, End: now, Archives: 4, ArchiveSize: 10})
	r.Observe(Outcome{Operation: "verify", Start: now, End: now, Archives: 5, Failed: 1, Err: errors.New("boom")})
	require.NoError(t, r.Write())

	assert.Equal(t, filepath.Join(dir, "dir_archiver_backup.prom"), r.PathFor("backup"))

	verify, err := os.ReadFile(r.PathFor("verify"))
	require.NoError(t, err)
	text := string(verify)
	assert.True(t, strings.HasPrefix(text, "# HELP"))
	assert.Contains(t, text, `dir_archiver_last_run_success{operation="verify"} 0`)
	assert.Contains(t, text, `dir_archiver_verify_failures{operation="verify"} 1`)
	assert.Contains(t, text, `dir_archiver_archives{operation="verify"} 5`)
	assert.NotContains(t, text, `operation="backup"`)

	backup, err := os.ReadFile(r.PathFor("backup"))
	require.NoError(t, err)
	assert.Contains(t, string(backup), `dir_archiver_archives{operation="backup"} 4`)
	assert.Contains(t, string(backup), `dir_archiver_last_archive_size_bytes{operation="backup"} 10`)
	assert.NotContains(t, string(backup), `operation="verify"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files renamed into place")
}

func TestDisabledRecorder(t *testing.T) {
	r := New("")
	assert.Empty(t, r.PathFor("backup"))
	r.Observe(Outcome{Operation: "restore"})
	assert.NoError(t, r.Write())
}

func TestFailedRunKeepsLastSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir_archiver.prom")
	ok := time.Unix(1_700_000_000, 0)

	first := New(path)
	first.Observe(Outcome{Operation: "backup", Start: ok, End: ok, ArchiveSize: 4096, Kept: 3, Deleted: 2, Archives: 3})
	require.NoError(t, first.Write())

	// a later process that fails
	later := ok.Add(24 * time.Hour)
	second := New(path)
	second.Observe(Outcome{Operation: "backup", Start: later, End: later, Err: apperr.ErrInsufficientSpace, Archives: 3})
	require.NoError(t, second.Write())

	assert.Equal(t, float64(ok.Unix()), testutil.ToFloat64(second.lastSuccess.WithLabelValues("backup")))
	assert.Equal(t, float64(later.Unix()), testutil.ToFloat64(second.lastRun.WithLabelValues("backup")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.success.WithLabelValues("backup")))

	data, err := os.ReadFile(second.PathFor("backup"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `dir_archiver_last_success_timestamp_seconds{operation="backup"}`)
	assert.Contains(t, text, `dir_archiver_last_archive_size_bytes{operation="backup"} 4096`)
	assert.Contains(t, text, `dir_archiver_rotation_kept{operation="backup"} 3`)
	assert.Contains(t, text, `dir_archiver_last_run_success{operation="backup"} 0`)
}

func TestUnparsableTextfileIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir_archiver.prom")
	r := New(path)
	require.NoError(t, os.WriteFile(r.PathFor("backup"), []byte("not { metrics"), 0o644))

	now := time.Now()
	r.Observe(Outcome{Operation: "backup", Start: now, End: now, Archives: 1})
	require.NoError(t, r.Write())

	data, err := os.ReadFile(r.PathFor("backup"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `dir_archiver_archives{operation="backup"} 1`)
	assert.NotContains(t, string(data), "not {")
}
