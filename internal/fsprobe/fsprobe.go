// Package fsprobe checks whether fsnotify works reliably for a directory.
// Network and FUSE filesystems often accept watches and then never deliver
// events, so the probe performs a real create+rename and waits for it.
package fsprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ScratchPrefix names the probe's temporary directory. Probe creates it
// inside the directory under test, usually the backup source, so the
// archive walker and the watcher both leave ScratchPattern out.
const ScratchPrefix = ".dir-archiver-probe-"

// ScratchPattern matches the probe directory by base name.
const ScratchPattern = ScratchPrefix + "*"

// Timeout bounds how long Probe waits for the first event.
var Timeout = 200 * time.Millisecond

// Result reports whether fsnotify is usable and why.
type Result struct {
	FsnotifySupported bool   // true if events are delivered
	Reason            string // explanation when unsupported
}

// Probe tests whether fsnotify reports changes made below dir. It works in
// a private temporary directory named with ScratchPrefix, created inside
// dir and removed before returning.
func Probe(dir string) Result {
	st, err := os.Stat(dir)
	if err != nil {
		return Result{false, fmt.Sprintf("stat failed: %v", err)}
	}
	if !st.IsDir() {
		return Result{false, "not a directory"}
	}

	scratch, err := os.MkdirTemp(dir, ScratchPrefix)
	if err != nil {
		return Result{false, fmt.Sprintf("cannot create probe directory: %v", err)}
	}
	defer os.RemoveAll(scratch)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return Result{false, fmt.Sprintf("fsnotify unavailable: %v", err)}
	}
	defer w.Close()

	if err := w.Add(scratch); err != nil {
		return Result{false, fmt.Sprintf("cannot watch directory: %v", err)}
	}

	tmp := filepath.Join(scratch, "probe.tmp")
	final := filepath.Join(scratch, "probe")

	if f, err := os.Create(tmp); err == nil {
		f.Close()
	} else {
		return Result{false, fmt.Sprintf("cannot create temp file: %v", err)}
	}
	if err := os.Rename(tmp, final); err != nil {
		return Result{false, fmt.Sprintf("rename failed: %v", err)}
	}

	timeout := time.After(Timeout)
	for {
		select {
		case ev := <-w.Events:
			if ev.Op&(fsnotify.Rename|fsnotify.Create|fsnotify.Write) != 0 {
				return Result{true, ""}
			}
		case err := <-w.Errors:
			return Result{false, fmt.Sprintf("watch error: %v", err)}
		case <-timeout:
			return Result{false, "no events received (rename not reported)"}
		}
	}
}
