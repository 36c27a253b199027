package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/raoulx24/dir-archiver/internal/digest"
)

// Scan lists every archive in dir whose name parses under n, newest first
// (ties broken by name, descending). A missing dir yields an empty set.
// Digest is filled from the sidecar when one is present.
func Scan(dir string, n Namer) ([]Entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var entries []Entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		ts, kind, err := n.Parse(name)
		if err != nil {
			continue
		}

		full := filepath.Join(dir, name)
		e := Entry{
			Name:      name,
			Path:      full,
			Timestamp: ts,
			Kind:      kind,
		}
		if info, err := d.Info(); err == nil {
			e.Size = info.Size()
		}
		if sum, _, err := digest.ReadRecord(digest.SidecarPath(full)); err == nil {
			e.Digest = sum
		}
		entries = append(entries, e)
	}

	SortNewestFirst(entries)
	return entries, nil
}

// SortNewestFirst orders entries by timestamp descending, then name descending.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Name > entries[j].Name
	})
}
