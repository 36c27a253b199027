package archive

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/raoulx24/dir-archiver/internal/fs"
)

// item is one source entry selected for archiving.
type item struct {
	abs   string
	rel   string // slash-separated, relative to the source root
	info  os.FileInfo
	link  string // symlink target
	state fs.FileInfo
}

// walkSource visits the tree below root in lexical order, skipping excluded
// entries, the subtree at skip (the destination when it lives inside the
// source) and special files. visit is called for directories, symlinks and
// regular files.
func walkSource(ctx context.Context, root string, m *Matcher, skip string, visit func(item) error) error {
	return filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if path != root && errors.Is(err, iofs.ErrNotExist) {
				return nil // removed while walking
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if skip != "" && path == skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if m.Excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}

		it := item{abs: path, rel: rel, info: info, state: fs.FromFileInfo(path, info)}
		switch mode := info.Mode(); {
		case mode.IsDir(), mode.IsRegular():
		case mode&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			it.link = target
		default:
			// sockets, fifos and devices are not archived
			return nil
		}
		return visit(it)
	})
}
