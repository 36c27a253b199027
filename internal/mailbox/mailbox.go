// Package mailbox provides a single-slot buffer where the latest job wins.
package mailbox

import (
	"context"
	"sync"
)

// Mailbox holds at most one pending job. It is NOT a queue: Put replaces
// whatever is waiting, so a burst of triggers collapses into one run.
type Mailbox[T any] struct {
	mu    sync.Mutex
	job   *T
	ready chan struct{} // len 1 while a job is waiting
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Put stores j, replacing any job still waiting. It never blocks.
// It reports whether an older job was dropped.
func (m *Mailbox[T]) Put(j T) (replaced bool) {
	m.mu.Lock()
	replaced = m.job != nil
	m.job = &j
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Take blocks until a job is available or ctx is done.
func (m *Mailbox[T]) Take(ctx context.Context) (T, bool) {
	for {
		if j := m.TryTake(); j != nil {
			return *j, true
		}
		select {
		case <-m.ready:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// TryTake returns the waiting job, or nil if the slot is empty.
func (m *Mailbox[T]) TryTake() *T {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.job
	m.job = nil
	return j
}

// HasJob reports whether a job is currently waiting.
func (m *Mailbox[T]) HasJob() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job != nil
}
