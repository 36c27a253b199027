package watcher

import (
	"context"
	"errors"
	iofs "io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartFsNotify watches every directory under the source and triggers a
// backup once events stop arriving for the debounce window.
func (w *Watcher) StartFsNotify(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.source); err != nil {
		return err
	}
	w.log.Info("watching source for changes", "source", w.source, "debounce", w.debounce.String())

	// Channel to request debounce resets
	resetCh := make(chan struct{}, 1)
	defer close(resetCh)

	go func() {
		var t *time.Timer
		for range resetCh {
			if t != nil {
				t.Stop()
			}
			t = time.AfterFunc(w.debounce, func() {
				if ctx.Err() == nil {
					w.trigger("change")
				}
			})
		}
		if t != nil {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				w.log.Error("events channel closed")
				return nil
			}
			if !w.relevant(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			w.log.Debug("event", "name", ev.Name, "op", ev.Op.String())

			if ev.Op.Has(fsnotify.Create) {
				// new directories need their own watch
				_ = w.addTree(watcher, ev.Name)
			}

			// Non-blocking send to reset debounce
			select {
			case resetCh <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("fsnotify error", "error", err)
		}
	}
}

// addTree adds root and every relevant directory below it.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) && path != w.source {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.source && !w.relevant(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return err
		}
		return nil
	})
}
