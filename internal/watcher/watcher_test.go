package watcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/worker"
)

func newTestWatcher(t *testing.T, mutate func(*config.Config)) (*Watcher, *mailbox.Mailbox[worker.Job], string) {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "docs", "a.txt"), []byte("a"), 0o644))

	cfg := config.Default()
	cfg.Destination = filepath.Join(src, "backups")
	cfg.Schedule = ""
	cfg.Debounce = 20 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	mb := mailbox.New[worker.Job]()
	w, err := New(cfg, src, true, logging.Nop(), mb)
	require.NoError(t, err)
	return w, mb, src
}

func TestRelevant(t *testing.T) {
	w, _, src := newTestWatcher(t, nil)

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(src, "docs", "a.txt"), true},
		{filepath.Join(src, "backups"), false},
		{filepath.Join(src, "backups", "home-1.tar.gz"), false},
		{filepath.Join(src, "backupsX"), true},
		{filepath.Join(src, "edit.swp"), false},
		{filepath.Join(src, "node_modules", "x.js"), false},
		{filepath.Join(src, ".dir-archiver-probe-42", "probe.tmp"), false},
		{filepath.Join(filepath.Dir(src), "elsewhere"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.relevant(tt.path), tt.path)
	}
}

func TestDetectTriggersOnlyOnChange(t *testing.T) {
	w, mb, src := newTestWatcher(t, nil)

	w.detect()
	assert.False(t, mb.HasJob(), "first scan is the baseline")

	w.detect()
	assert.False(t, mb.HasJob())

	// ignored paths do not count
	require.NoError(t, os.MkdirAll(filepath.Join(src, "backups"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "backups", "x.tar.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "scratch.tmp"), []byte("x"), 0o644))
	w.detect()
	assert.False(t, mb.HasJob())

	require.NoError(t, os.WriteFile(filepath.Join(src, "docs", "b.txt"), []byte("b"), 0o644))
	w.detect()
	job := mb.TryTake()
	require.NotNil(t, job)
	assert.Equal(t, "change", job.Trigger)
	assert.Equal(t, src, job.Source)
	assert.True(t, job.Incremental)
	assert.False(t, job.At.IsZero())
}

func TestPollingTriggers(t *testing.T) {
	w, mb, src := newTestWatcher(t, func(c *config.Config) { c.WatchMode = "poll" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(src, "new.txt"), []byte("n"), 0o644))
	require.Eventually(t, mb.HasJob, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestFsNotifyDebouncesBursts(t *testing.T) {
	w, mb, src := newTestWatcher(t, func(c *config.Config) { c.WatchMode = "fsnotify" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// a directory created after start is watched too
	sub := filepath.Join(src, "later")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(50 * time.Millisecond)
	_ = mb.TryTake()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(sub, "f.txt"), []byte{byte(i)}, 0o644))
	}
	require.Eventually(t, mb.HasJob, 5*time.Second, 10*time.Millisecond)
	job := mb.TryTake()
	require.NotNil(t, job)
	assert.Equal(t, "change", job.Trigger)

	cancel()
	assert.NoError(t, <-done)
}

func TestScheduleTriggers(t *testing.T) {
	w, mb, _ := newTestWatcher(t, func(c *config.Config) { c.Schedule = "@every 1s" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, mb.HasJob, 5*time.Second, 20*time.Millisecond)
	job := mb.TryTake()
	require.NotNil(t, job)
	assert.Equal(t, "schedule", job.Trigger)

	cancel()
	assert.NoError(t, <-done)
}

func TestStartWithNothingToDo(t *testing.T) {
	w, _, _ := newTestWatcher(t, func(c *config.Config) { c.WatchMode = "off" })
	assert.NoError(t, w.Start(context.Background()))
}

func TestWatchFailureStopsSchedule(t *testing.T) {
	w, _, src := newTestWatcher(t, func(c *config.Config) {
		c.Schedule = "@every 1h"
		c.WatchMode = "fsnotify"
	})
	var buf bytes.Buffer
	w.log = logging.NewWriter(&buf, "info")
	require.NoError(t, os.RemoveAll(src))

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept running after change detection failed")
	}
	assert.Contains(t, buf.String(), "change detection stopped")
}
