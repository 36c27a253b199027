//go:build !unix

package lock

import "os"

// processAlive relies on FindProcess, which on Windows opens a handle and
// fails for processes that no longer exist.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// guard is a no-op where flock is unavailable; stale reclaim falls back to
// the exclusive create alone.
func guard(dir string) (func(), error) {
	_ = dir
	return func() {}, nil
}
