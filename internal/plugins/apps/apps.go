// Package apps surfaces installed desktop applications, scanned from the
// XDG application directories.
package apps

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/perchrun/perch/internal/cache"
	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/history"
	"github.com/perchrun/perch/internal/log"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
)

// App is one launchable desktop application.
type App struct {
	Name     string
	Comment  string
	Exec     string
	Terminal bool
	Path     string
}

// Plugin lists and launches desktop applications, prefix "run".
type Plugin struct {
	dirs    []string
	scanned *cache.Cache[string, []App]
	history *history.Store

	// launch starts the application command line. Swappable for tests.
	launch func(ctx context.Context, app App) error
}

// New creates the plugin. dirs of nil uses the standard application
// directories; hist may be nil to skip launch recording.
func New(dirs []string, ttl time.Duration, hist *history.Store) *Plugin {
	if dirs == nil {
		dirs = defaultDirs()
	}
	return &Plugin{
		dirs:    dirs,
		scanned: cache.New[string, []App](ttl),
		history: hist,
		launch:  launchApp,
	}
}

func defaultDirs() []string {
	dirs := []string{"/usr/share/applications", "/usr/local/share/applications"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "applications"))
	}
	return dirs
}

func (p *Plugin) Prefix() string { return "run" }

func (p *Plugin) Init(context.Context) error {
	p.apps() // warm the cache
	return nil
}

func (p *Plugin) Actions() []plugin.Action {
	return []plugin.Action{
		plugin.DefaultAction("Run Program", "run"),
		plugin.ShortcutAction("Open Desktop Entry", "open", "ctrl+o"),
	}
}

func (p *Plugin) GetForValues(ctx context.Context, input *match.Input, sink *collect.TaggedSink) {
	apps := p.apps()

	var matched []int
	for i, app := range apps {
		if input.Matches(app.Name) || (app.Comment != "" && input.Matches(app.Comment)) {
			matched = append(matched, i)
		}
	}

	// Habitual picks first: ranking preserves a plugin's emission order for
	// non-perfect entries, so ordering by launch count here is enough.
	if p.history != nil && len(matched) > 1 {
		counts, err := p.history.LaunchCounts(ctx, p.Prefix())
		if err != nil {
			log.WithPlugin(p.Prefix()).Warn("failed to load launch counts", "error", err)
		} else {
			sort.SliceStable(matched, func(a, b int) bool {
				return counts[apps[matched[a]].Name] > counts[apps[matched[b]].Name]
			})
		}
	}

	sink.Commit(func(yield func(collect.Entry) bool) {
		for _, i := range matched {
			e := collect.Entry{
				Name:     apps[i].Name,
				Subtitle: apps[i].Comment,
				// The App itself, not an index: a rescan between query and
				// Handle must not redirect the launch.
				Data: collect.NewData(apps[i]),
			}
			if !yield(e) {
				return
			}
		}
	})
}

func (p *Plugin) Handle(ctx context.Context, data collect.Data, actionID string) (plugin.Effect, error) {
	app := collect.As[App](data)

	if actionID == "open" {
		return plugin.Effect{Kind: plugin.EffectCopy, Text: app.Path}, nil
	}
	if err := p.launch(ctx, app); err != nil {
		return plugin.Effect{}, fmt.Errorf("launch %q: %w", app.Name, err)
	}
	if p.history != nil {
		if err := p.history.Append(ctx, p.Prefix(), app.Name, ""); err != nil {
			log.WithPlugin(p.Prefix()).Warn("failed to record launch", "error", err)
		}
	}
	return plugin.Effect{Kind: plugin.EffectNone}, nil
}

// apps returns the scanned application list, rescanning when the cached copy
// expired.
func (p *Plugin) apps() []App {
	return p.scanned.GetOrInsert("apps", p.scan)
}

func (p *Plugin) scan() []App {
	var out []App
	seen := map[string]bool{}
	for _, dir := range p.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".desktop") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			app, ok := parseDesktopFile(path)
			if !ok || seen[app.Name] {
				continue
			}
			seen[app.Name] = true
			out = append(out, app)
		}
	}
	log.WithPlugin("run").Debug("scanned applications", "count", len(out))
	return out
}

// parseDesktopFile extracts the fields we need from a desktop entry. It only
// reads the [Desktop Entry] group and ignores everything else.
func parseDesktopFile(path string) (App, bool) {
	f, err := os.Open(path)
	if err != nil {
		return App{}, false
	}
	defer f.Close()

	app := App{Path: path}
	inEntry := false
	hidden := false
	isApp := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "Name":
			app.Name = value
		case "Comment":
			app.Comment = value
		case "Exec":
			app.Exec = stripFieldCodes(value)
		case "Terminal":
			app.Terminal = value == "true"
		case "NoDisplay":
			hidden = value == "true"
		case "Type":
			isApp = value == "Application"
		}
	}

	if hidden || !isApp || app.Name == "" || app.Exec == "" {
		return App{}, false
	}
	return app, true
}

// stripFieldCodes removes %u/%U/%f/%F placeholders from an Exec line.
func stripFieldCodes(exec string) string {
	for _, code := range []string{"%u", "%U", "%f", "%F"} {
		exec = strings.ReplaceAll(exec, code, "")
	}
	return strings.TrimSpace(exec)
}

// launchApp starts the application detached; it must outlive the handling
// context.
func launchApp(_ context.Context, app App) error {
	fields := strings.Fields(app.Exec)
	if len(fields) == 0 {
		return fmt.Errorf("desktop entry has an empty Exec line")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	return cmd.Start()
}
