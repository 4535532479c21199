package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perchrun/perch/internal/config"
	"github.com/perchrun/perch/internal/events"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRebuildIndexesRoots(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, "docs", "report.pdf"))

	ix := New(&config.FilesConfig{Roots: []string{root}}, nil)
	if err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	names := map[string]bool{}
	for _, f := range ix.Files() {
		names[f.Name] = true
	}
	for _, want := range []string{"notes.txt", "report.pdf", "docs"} {
		if !names[want] {
			t.Errorf("index missing %q, have %v", want, names)
		}
	}
}

func TestRebuildSkipsIgnoredAndHiddenDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"))
	writeFile(t, filepath.Join(root, "node_modules", "dep.js"))
	writeFile(t, filepath.Join(root, ".git", "HEAD"))

	ix := New(&config.FilesConfig{
		Roots:      []string{root},
		IgnoreDirs: []string{"node_modules"},
	}, nil)
	if err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for _, f := range ix.Files() {
		if f.Name == "dep.js" || f.Name == "HEAD" {
			t.Errorf("ignored file %q made it into the index", f.Name)
		}
	}
}

func TestRebuildToleratesMissingRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"))

	ix := New(&config.FilesConfig{
		Roots: []string{filepath.Join(root, "does-not-exist"), root},
	}, nil)
	if err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if ix.Len() == 0 {
		t.Fatal("good root should still be indexed")
	}
}

func TestRebuildPublishesEvents(t *testing.T) {
	root := t.TempDir()
	hub := events.NewHub(10)
	ix := New(&config.FilesConfig{Roots: []string{root}}, hub)

	if err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	evs := hub.SnapshotSince(0)
	if len(evs) != 2 {
		t.Fatalf("published %d events, want 2", len(evs))
	}
	if evs[0].Type != events.TypeIndexStarted || evs[1].Type != events.TypeIndexFinished {
		t.Fatalf("event types = %s, %s", evs[0].Type, evs[1].Type)
	}
}

func TestWatcherRebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	ix := New(&config.FilesConfig{Roots: []string{root}}, nil)
	if err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	before := ix.BuiltAt()

	w, err := NewWatcher(ix)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	w.debounce = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	writeFile(t, filepath.Join(root, "new.txt"))

	deadline := time.After(3 * time.Second)
	for {
		if ix.BuiltAt().After(before) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("index never rebuilt after file change")
		case <-time.After(10 * time.Millisecond):
		}
	}

	found := false
	for _, f := range ix.Files() {
		if f.Name == "new.txt" {
			found = true
		}
	}
	if !found {
		t.Fatal("rebuilt index missing the new file")
	}
}
