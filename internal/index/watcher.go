package index

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/perchrun/perch/internal/log"
)

// Watcher listens for filesystem changes under the index roots and triggers
// a debounced rebuild. Bursts (builds, checkouts) collapse into one rebuild.
type Watcher struct {
	index    *Index
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a watcher over the index's roots. debounce <= 0 uses a
// 500ms default.
func NewWatcher(ix *Index) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		index:    ix,
		debounce: 500 * time.Millisecond,
		fsw:      fsw,
	}
	for _, root := range ix.cfg.Roots {
		if err := w.addTree(root); err != nil {
			log.WithComponent("index").Warn("cannot watch root",
				"root", root, "error", err)
		}
	}
	return w, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	logger := log.WithComponent("index")

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ignore(ev.Name) {
				continue
			}
			// New directories need their own watches before the rebuild,
			// or changes inside them go unseen.
			if ev.Op&fsnotify.Create != 0 {
				_ = w.addTree(ev.Name)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			if err := w.index.Rebuild(ctx); err != nil {
				logger.Warn("rebuild after change failed", "error", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) ignore(path string) bool {
	return w.index.skipDir(filepath.Base(path))
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.index.skipDir(d.Name()) {
			return fs.SkipDir
		}
		return w.fsw.Add(path)
	})
}
