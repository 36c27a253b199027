package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNamer() Namer {
	return Namer{Prefix: "home", Layout: "20060102-150405", Location: time.UTC}
}

func TestNameAndParseRoundTrip(t *testing.T) {
	n := testNamer()
	ts := time.Date(2025, 11, 10, 2, 0, 0, 0, time.UTC)

	tests := []struct {
		kind Kind
		want string
	}{
		{KindFull, "home-20251110-020000.tar.gz"},
		{KindIncremental, "home-20251110-020000-inc.tar.gz"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			name := n.Name(ts, tt.kind)
			assert.Equal(t, tt.want, name)

			gotTS, gotKind, err := n.Parse(name)
			require.NoError(t, err)
			assert.True(t, ts.Equal(gotTS))
			assert.Equal(t, tt.kind, gotKind)
		})
	}
}

func TestParseRejectsForeignNames(t *testing.T) {
	n := testNamer()
	for _, name := range []string{
		"home-20251110-020000.tar.gz.sha256",
		"other-20251110-020000.tar.gz",
		"home-notatime.tar.gz",
		"home-20251110-020000.zip",
		".home-20251110-020000.tar.gz.tmp",
	} {
		_, _, err := n.Parse(name)
		assert.Error(t, err, name)
	}
}

func TestScanOrdersByParsedTimestamp(t *testing.T) {
	dir := t.TempDir()
	// A layout that does not sort lexically: day-month-year.
	n := Namer{Prefix: "home", Layout: "02-01-2006", Location: time.UTC}

	names := []string{
		n.Name(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), KindFull),
		n.Name(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), KindFull),
		n.Name(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), KindIncremental),
	}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, names[1]+".sha256"), []byte("abc  "+names[1]+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "home-01-01-2025.tar.gz"), 0o755))

	entries, err := Scan(dir, n)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, names[1], entries[0].Name)
	assert.Equal(t, names[0], entries[1].Name)
	assert.Equal(t, names[2], entries[2].Name)

	assert.Equal(t, "abc", entries[0].Digest)
	assert.True(t, entries[0].Stamped())
	assert.False(t, entries[1].Stamped())
	assert.Equal(t, KindIncremental, entries[2].Kind)
	assert.Equal(t, int64(1), entries[0].Size)
}

func TestScanMissingDirectory(t *testing.T) {
	entries, err := Scan(filepath.Join(t.TempDir(), "absent"), testNamer())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSortNewestFirstBreaksTiesByName(t *testing.T) {
	ts := time.Date(2025, 11, 10, 2, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Name: "home-a", Timestamp: ts},
		{Name: "home-c", Timestamp: ts},
		{Name: "home-b", Timestamp: ts},
	}
	SortNewestFirst(entries)
	assert.Equal(t, []string{"home-c", "home-b", "home-a"},
		[]string{entries[0].Name, entries[1].Name, entries[2].Name})
}
