// Package index maintains the in-memory filesystem index the files plugin
// queries, plus a watcher that keeps it fresh.
package index

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/perchrun/perch/internal/config"
	"github.com/perchrun/perch/internal/events"
	"github.com/perchrun/perch/internal/log"
)

// File is one indexed filesystem entry.
type File struct {
	// Path is the absolute path.
	Path string
	// Name is the base name, what queries are matched against.
	Name string
	// Dir reports whether the entry is a directory.
	Dir bool
}

// Index is a swappable snapshot of indexed files. Reads see a consistent
// snapshot while a rebuild runs.
type Index struct {
	cfg *config.FilesConfig
	hub *events.Hub

	mu    sync.RWMutex
	files []File
	built time.Time
}

func New(cfg *config.FilesConfig, hub *events.Hub) *Index {
	return &Index{cfg: cfg, hub: hub}
}

// Files returns the current snapshot. Callers must not mutate it.
func (ix *Index) Files() []File {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.files
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.files)
}

// BuiltAt returns when the current snapshot finished building.
func (ix *Index) BuiltAt() time.Time {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.built
}

// Rebuild walks all configured roots in parallel and atomically swaps in the
// new snapshot. A failed root is logged and skipped; the other roots still
// contribute.
func (ix *Index) Rebuild(ctx context.Context) error {
	logger := log.WithComponent("index")
	start := time.Now()
	if ix.hub != nil {
		ix.hub.Publish(events.TypeIndexStarted, map[string]any{
			"roots": len(ix.cfg.Roots),
		})
	}

	var mu sync.Mutex
	var files []File

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range ix.cfg.Roots {
		g.Go(func() error {
			part, err := ix.walkRoot(gctx, root)
			if err != nil {
				logger.Warn("skipping unreadable root", "root", root, "error", err)
				return nil
			}
			mu.Lock()
			files = append(files, part...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Deterministic order keeps equal-rank results stable across rebuilds.
	slices.SortFunc(files, func(a, b File) int {
		return strings.Compare(a.Path, b.Path)
	})

	ix.mu.Lock()
	ix.files = files
	ix.built = time.Now()
	ix.mu.Unlock()

	logger.Info("index rebuilt",
		"files", len(files),
		"duration_ms", time.Since(start).Milliseconds())
	if ix.hub != nil {
		ix.hub.Publish(events.TypeIndexFinished, map[string]any{
			"files":       len(files),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
	return nil
}

func (ix *Index) walkRoot(ctx context.Context, root string) ([]File, error) {
	var out []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtree, keep going.
			return fs.SkipDir
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && ix.skipDir(name) {
				return fs.SkipDir
			}
			if path != root {
				out = append(out, File{Path: path, Name: name, Dir: true})
			}
			return nil
		}
		out = append(out, File{Path: path, Name: name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (ix *Index) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return slices.Contains(ix.cfg.IgnoreDirs, name)
}
