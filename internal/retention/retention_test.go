package retention

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/digest"
	"github.com/raoulx24/dir-archiver/internal/fs"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

var namer = snapshot.Namer{Prefix: "home", Layout: "20060102-150405", Location: time.UTC}

func entryAt(dir string, ts time.Time) snapshot.Entry {
	name := namer.Name(ts, snapshot.KindFull)
	return snapshot.Entry{
		Name:      name,
		Path:      filepath.Join(dir, name),
		Timestamp: ts,
		Kind:      snapshot.KindFull,
		Digest:    "00",
	}
}

func dailyEntries(dir string, from time.Time, days int) []snapshot.Entry {
	var out []snapshot.Entry
	for i := 0; i < days; i++ {
		out = append(out, entryAt(dir, from.AddDate(0, 0, i)))
	}
	return out
}

func names(plan Plan) (kept map[string]Tier, deleted []string) {
	kept = map[string]Tier{}
	for _, k := range plan.Kept {
		kept[k.Entry.Name] = k.Tier
	}
	for _, d := range plan.Deleted {
		deleted = append(deleted, d.Name)
	}
	return kept, deleted
}

func TestClassifyTenDailyBackups(t *testing.T) {
	entries := dailyEntries("", time.Date(2025, 11, 1, 2, 0, 0, 0, time.UTC), 10)

	plan := Classify(entries, config.RetentionPolicy{DailyKeep: 2, WeeklyKeep: 4, MonthlyKeep: 3})
	kept, deleted := names(plan)

	assert.Equal(t, map[string]Tier{
		"home-20251110-020000.tar.gz": Daily,
		"home-20251109-020000.tar.gz": Daily,
		// 11-09 already covers ISO week 45, so week 44 is the only promotion
		"home-20251102-020000.tar.gz": Weekly,
	}, kept)
	assert.Len(t, deleted, 7)
	assert.NotContains(t, deleted, "home-20251110-020000.tar.gz")
	assert.Equal(t, "home-20251108-020000.tar.gz", deleted[0])
}

func TestClassifyKeepsEverythingUpToDailyKeep(t *testing.T) {
	policy := config.RetentionPolicy{DailyKeep: 7, WeeklyKeep: 4, MonthlyKeep: 3}
	for n := 0; n <= 7; n++ {
		entries := dailyEntries("", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), n)
		plan := Classify(entries, policy)
		assert.Len(t, plan.Kept, n)
		assert.Empty(t, plan.Deleted)
	}
}

func TestClassifyBounds(t *testing.T) {
	policy := config.RetentionPolicy{DailyKeep: 7, WeeklyKeep: 4, MonthlyKeep: 3}
	start := time.Date(2022, 1, 15, 3, 0, 0, 0, time.UTC)

	for n := 0; n <= 40; n++ {
		// a month apart, so every entry sits alone in its week and month
		var entries []snapshot.Entry
		for i := 0; i < n; i++ {
			entries = append(entries, entryAt("", start.AddDate(0, i, 0)))
		}

		plan := Classify(entries, policy)
		assert.Len(t, plan.Kept, min(n, 14), "n=%d", n)
		assert.Equal(t, n, len(plan.Kept)+len(plan.Deleted), "n=%d", n)
		if n > 0 {
			assert.Equal(t, entries[n-1].Name, plan.Kept[0].Entry.Name, "newest kept, n=%d", n)
		}
	}

	// dense history never exceeds the sum of the tiers
	dense := dailyEntries("", start, 400)
	plan := Classify(dense, policy)
	assert.LessOrEqual(t, len(plan.Kept), 14)
	assert.Equal(t, 400, len(plan.Kept)+len(plan.Deleted))

	tiers := map[Tier]int{}
	for _, k := range plan.Kept {
		tiers[k.Tier]++
	}
	assert.Equal(t, 7, tiers[Daily])
	assert.LessOrEqual(t, tiers[Weekly], 4)
	assert.LessOrEqual(t, tiers[Monthly], 3)
}

func TestClassifyOrdersByTimeNotName(t *testing.T) {
	// a day-first layout sorts lexically in the wrong order
	n := snapshot.Namer{Prefix: "home", Layout: "02-01-2006", Location: time.UTC}
	older := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	entries := []snapshot.Entry{
		{Name: n.Name(older, snapshot.KindFull), Timestamp: older, Digest: "aa"},
		{Name: n.Name(newer, snapshot.KindFull), Timestamp: newer, Digest: "bb"},
	}

	plan := Classify(entries, config.RetentionPolicy{DailyKeep: 1})
	require.Len(t, plan.Kept, 1)
	assert.Equal(t, newer, plan.Kept[0].Entry.Timestamp)
	require.Len(t, plan.Deleted, 1)
	assert.Equal(t, older, plan.Deleted[0].Timestamp)
}

func TestClassifyIgnoresUnstamped(t *testing.T) {
	entries := dailyEntries("", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 5)
	entries[4].Digest = "" // newest
	entries[0].Digest = "" // oldest

	plan := Classify(entries, config.RetentionPolicy{DailyKeep: 1})
	kept, deleted := names(plan)
	assert.Equal(t, map[string]Tier{entries[3].Name: Daily}, kept)
	assert.ElementsMatch(t, []string{entries[1].Name, entries[2].Name}, deleted)
}

func TestClassifyIncludesIncrementals(t *testing.T) {
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	full := entryAt("", ts)
	inc := entryAt("", ts.Add(time.Hour))
	inc.Kind = snapshot.KindIncremental
	inc.Name = namer.Name(inc.Timestamp, snapshot.KindIncremental)

	plan := Classify([]snapshot.Entry{full, inc}, config.RetentionPolicy{DailyKeep: 1})
	require.Len(t, plan.Kept, 1)
	assert.Equal(t, inc.Name, plan.Kept[0].Entry.Name)
	assert.Equal(t, []snapshot.Entry{full}, plan.Deleted)
}

// stampedSet writes days archives with digest records into dir.
func stampedSet(t *testing.T, dir string, days int) []snapshot.Entry {
	t.Helper()
	v := digest.New(nil)
	entries := dailyEntries(dir, time.Date(2025, 11, 1, 2, 0, 0, 0, time.UTC), days)
	for _, e := range entries {
		require.NoError(t, os.WriteFile(e.Path, []byte(e.Name), 0o644))
		_, err := v.Stamp(context.Background(), e.Path)
		require.NoError(t, err)
	}
	return entries
}

func TestRotateDeletesArchivesWithSidecars(t *testing.T) {
	dir := t.TempDir()
	stampedSet(t, dir, 10)
	// an unstamped archive is left alone
	orphan := filepath.Join(dir, namer.Name(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), snapshot.KindFull))
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))

	var buf bytes.Buffer
	e := New(nil, logging.NewWriter(&buf, "info"))

	plan, err := e.Rotate(context.Background(), dir, namer, config.RetentionPolicy{DailyKeep: 2, WeeklyKeep: 4, MonthlyKeep: 3}, false)
	require.NoError(t, err)
	assert.Len(t, plan.Kept, 3)
	assert.Len(t, plan.Deleted, 7)

	for _, d := range plan.Deleted {
		assert.NoFileExists(t, d.Path)
		assert.NoFileExists(t, digest.SidecarPath(d.Path))
		assert.Contains(t, buf.String(), "rotation: deleting archive archive="+d.Path)
	}
	for _, k := range plan.Kept {
		assert.FileExists(t, k.Entry.Path)
		assert.FileExists(t, digest.SidecarPath(k.Entry.Path))
	}
	assert.FileExists(t, orphan)

	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, remaining, 7) // 3 archives, 3 sidecars, 1 orphan
}

func TestRotateDryRunDeletesNothing(t *testing.T) {
	dir := t.TempDir()
	entries := stampedSet(t, dir, 10)

	var buf bytes.Buffer
	e := New(nil, logging.NewWriter(&buf, "info"))

	plan, err := e.Rotate(context.Background(), dir, namer, config.RetentionPolicy{DailyKeep: 2}, true)
	require.NoError(t, err)
	assert.Len(t, plan.Deleted, 8)

	for _, entry := range entries {
		assert.FileExists(t, entry.Path)
		assert.FileExists(t, digest.SidecarPath(entry.Path))
	}
	assert.Contains(t, buf.String(), "dry run: would delete archive")
	assert.NotContains(t, buf.String(), "rotation: deleting archive")
}

func TestApplyStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	entries := stampedSet(t, dir, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(nil, nil).Apply(ctx, Plan{Deleted: entries}, false)
	require.ErrorIs(t, err, context.Canceled)
	for _, entry := range entries {
		assert.FileExists(t, entry.Path)
	}
}

// failingFS refuses to delete archives but removes anything else.
type failingFS struct {
	*fs.OSFS
}

func (f failingFS) Remove(path string) error {
	if strings.HasSuffix(path, snapshot.ArchiveExt) {
		return errors.New("read-only volume")
	}
	return f.OSFS.Remove(path)
}

func TestFailedDeleteLeavesNoOrphanDigest(t *testing.T) {
	dir := t.TempDir()
	stampedSet(t, dir, 3)

	var buf bytes.Buffer
	e := New(failingFS{fs.New()}, logging.NewWriter(&buf, "info"))

	plan, err := e.Rotate(context.Background(), dir, namer, config.RetentionPolicy{DailyKeep: 1}, false)
	require.Error(t, err)
	require.Len(t, plan.Deleted, 2)

	for _, d := range plan.Deleted {
		assert.FileExists(t, d.Path)
		assert.NoFileExists(t, digest.SidecarPath(d.Path))
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "rotation: delete failed"))

	// the leftovers are unstamped now and rotation leaves them alone
	again, err := New(nil, nil).Rotate(context.Background(), dir, namer, config.RetentionPolicy{DailyKeep: 1}, false)
	require.NoError(t, err)
	assert.Len(t, again.Kept, 1)
	assert.Empty(t, again.Deleted)
}
