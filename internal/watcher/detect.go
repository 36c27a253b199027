package watcher

import (
	"errors"
	"hash/fnv"
	iofs "io/fs"
	"path/filepath"
	"strconv"
)

// fingerprint summarizes the relevant part of the source tree.
type fingerprint struct {
	files int
	bytes int64
	sum   uint64
}

func (w *Watcher) fingerprint() (fingerprint, error) {
	var fp fingerprint
	h := fnv.New64a()
	err := filepath.WalkDir(w.source, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if path != w.source && errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path != w.source && !w.relevant(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == w.source {
			return nil
		}
		h.Write([]byte(path))
		if d.IsDir() {
			// directory mtimes move whenever an ignored entry changes
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fp.files++
		fp.bytes += info.Size()
		h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
		h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
		return nil
	})
	fp.sum = h.Sum64()
	return fp, err
}

// detect triggers a backup if the source tree differs from the last look.
// The first look only records a baseline.
func (w *Watcher) detect() {
	fp, err := w.fingerprint()
	if err != nil {
		w.log.Warn("scanning source failed", "source", w.source, "error", err)
		return
	}

	w.mu.Lock()
	prev := w.last
	w.last = fp
	w.mu.Unlock()

	if prev == (fingerprint{}) || prev == fp {
		return
	}
	w.trigger("change")
}
