package archive

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/raoulx24/dir-archiver/internal/fs"
)

const stateVersion = 1

// State is the change-tracking record of the last incremental pass. Only
// the Builder reads or writes it.
type State struct {
	Version   int                  `json:"version"`
	Source    string               `json:"source"`
	UpdatedAt time.Time            `json:"updated_at"`
	Archive   string               `json:"archive,omitempty"`
	Files     map[string]FileState `json:"files"`
}

// FileState is what an incremental pass remembers about one regular file.
type FileState struct {
	Size  int64     `json:"size"`
	MTime time.Time `json:"mtime"`
	Inode uint64    `json:"inode,omitempty"`
}

func (s FileState) info(path string) fs.FileInfo {
	return fs.FileInfo{Path: path, Size: s.Size, MTime: s.MTime, Inode: s.Inode}
}

func fileStateOf(fi fs.FileInfo) FileState {
	return FileState{Size: fi.Size, MTime: fi.MTime, Inode: fi.Inode}
}

// LoadState reads the state file. A missing file is an empty state, so the
// first incremental run captures everything.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return &State{Version: stateVersion, Files: map[string]FileState{}}, nil
		}
		return nil, fmt.Errorf("reading snapshot state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding snapshot state %s: %w", path, err)
	}
	if st.Version != stateVersion {
		return nil, fmt.Errorf("snapshot state %s has version %d, want %d", path, st.Version, stateVersion)
	}
	if st.Files == nil {
		st.Files = map[string]FileState{}
	}
	return &st, nil
}

// SaveState replaces the state file atomically.
func SaveState(ctx context.Context, filesystem fs.FS, path string, st *State) error {
	st.Version = stateVersion
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot state: %w", err)
	}
	if err := filesystem.WriteFileAtomic(ctx, path, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot state: %w", err)
	}
	return nil
}
