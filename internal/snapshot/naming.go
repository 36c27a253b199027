package snapshot

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ArchiveExt is appended to every archive name.
	ArchiveExt = ".tar.gz"

	// IncrementalTag marks incremental archives: <prefix>-<ts>-inc.tar.gz
	IncrementalTag = "-inc"
)

// Namer builds and parses archive names of the form
// <prefix>-<timestamp>[-inc].tar.gz. Layout is a Go time layout.
type Namer struct {
	Prefix   string
	Layout   string
	Location *time.Location
}

func (n Namer) loc() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}

// Name returns the archive file name for an archive created at t.
func (n Namer) Name(t time.Time, kind Kind) string {
	name := n.Prefix + "-" + t.In(n.loc()).Format(n.Layout)
	if kind == KindIncremental {
		name += IncrementalTag
	}
	return name + ArchiveExt
}

// Parse recovers timestamp and kind from an archive file name. The timestamp
// is parsed into a time.Time rather than compared as text, so ordering does
// not depend on the layout sorting lexically.
func (n Namer) Parse(name string) (time.Time, Kind, error) {
	prefix := n.Prefix + "-"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ArchiveExt) {
		return time.Time{}, "", fmt.Errorf("%q is not a %s archive", name, n.Prefix)
	}

	core := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ArchiveExt)
	kind := KindFull
	if strings.HasSuffix(core, IncrementalTag) {
		// A layout that itself ends in "-inc" cannot occur: strftime has no such verb.
		core = strings.TrimSuffix(core, IncrementalTag)
		kind = KindIncremental
	}

	ts, err := time.ParseInLocation(n.Layout, core, n.loc())
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing timestamp of %q: %w", name, err)
	}
	return ts, kind, nil
}
