package fsprobe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	res := Probe(dir)
	assert.True(t, res.FsnotifySupported, res.Reason)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe cleans up after itself")
}

func TestProbeRejectsNonDirectories(t *testing.T) {
	res := Probe(filepath.Join(t.TempDir(), "absent"))
	assert.False(t, res.FsnotifySupported)
	assert.Contains(t, res.Reason, "stat failed")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	res = Probe(file)
	assert.False(t, res.FsnotifySupported)
	assert.Equal(t, "not a directory", res.Reason)
}
