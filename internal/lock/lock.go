// Package lock provides single-host mutual exclusion through a marker file
// holding the owner's PID.
//
// The marker is published atomically and fails if present, so creation
// itself is the test-and-set. Reclaiming a stale marker is serialized by an advisory flock
// on the lock directory, leaving the marker as the only file involved.
package lock

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/logging"
)

// ErrHeld is returned when a live process owns the lock.
var ErrHeld = fmt.Errorf("%w", apperr.ErrLockContention)

// HeldError carries the PID of the current owner.
type HeldError struct {
	Path string
	PID  int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("lock %s held by pid %d", e.Path, e.PID)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// Manager owns one lock file.
type Manager struct {
	mu   sync.Mutex
	path string
	pid  int
	held bool
	log  logging.Logger

	alive func(pid int) bool
}

func New(path string, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		path:  path,
		pid:   os.Getpid(),
		log:   log,
		alive: processAlive,
	}
}

// Acquire takes the lock or fails with an error wrapping
// apperr.ErrLockContention. A lock left by a dead process is removed and the
// exclusive create retried once.
func (m *Manager) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	err := m.create()
	if err == nil {
		m.held = true
		m.log.Debug("lock acquired", "path", m.path, "pid", m.pid)
		return nil
	}
	if !errors.Is(err, iofs.ErrExist) {
		return fmt.Errorf("creating lock file: %w", err)
	}

	// The token exists. Inspecting and reclaiming it happens under a guard so
	// that two processes finding the same stale token cannot both remove it
	// and each believe they own the fresh one.
	unlock, err := guard(filepath.Dir(m.path))
	if err != nil {
		return fmt.Errorf("guarding lock directory: %w", err)
	}
	defer unlock()

	owner, readErr := readPID(m.path)
	switch {
	case readErr == nil && m.alive(owner):
		return &HeldError{Path: m.path, PID: owner}
	case readErr != nil && errors.Is(readErr, iofs.ErrNotExist):
		// released while we waited for the guard
	default:
		m.log.Warn("removing stale lock", "path", m.path, "pid", owner)
		if err := os.Remove(m.path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("removing stale lock: %w", err)
		}
	}

	if err := m.create(); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			owner, _ := readPID(m.path)
			return &HeldError{Path: m.path, PID: owner}
		}
		return fmt.Errorf("creating lock file: %w", err)
	}
	m.held = true
	m.log.Debug("lock acquired", "path", m.path, "pid", m.pid, "reclaimed", true)
	return nil
}

// Release removes the lock file if this manager holds it. It is idempotent
// and safe to call from every exit path, including after a failed Acquire.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.held {
		return nil
	}
	m.held = false

	if err := os.Remove(m.path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	m.log.Debug("lock released", "path", m.path)
	return nil
}

// Held reports whether this manager currently owns the lock.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// create publishes a fully written PID file with link(2), which fails with
// EEXIST when the token is present. Readers therefore never see an empty token.
func (m *Manager) create() error {
	tmp, err := os.CreateTemp(filepath.Dir(m.path), "."+filepath.Base(m.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.Itoa(m.pid) + "\n"); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Link(tmp.Name(), m.path)
}

// readPID parses the owner recorded in the lock file. Garbage content is
// reported as an error and treated by Acquire as a stale lock.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in lock file %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}
