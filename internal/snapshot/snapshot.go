// Package snapshot models the archives kept in the backup destination and
// the naming convention that encodes their creation time.
package snapshot

import "time"

// Kind distinguishes full archives from incremental ones.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

// Entry represents a single archive in the backup destination.
type Entry struct {
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Size      int64     `json:"size" yaml:"size"`

	// Digest is the hex SHA-256 recorded in the sidecar, empty when the
	// sidecar is missing or unreadable.
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// Stamped reports whether the entry has a digest record. Unstamped entries
// are treated as unverified and ignored by rotation.
func (e Entry) Stamped() bool {
	return e.Digest != ""
}
