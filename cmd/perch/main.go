package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/perchrun/perch/internal/api"
	"github.com/perchrun/perch/internal/cache"
	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/config"
	"github.com/perchrun/perch/internal/events"
	"github.com/perchrun/perch/internal/history"
	"github.com/perchrun/perch/internal/index"
	"github.com/perchrun/perch/internal/lock"
	"github.com/perchrun/perch/internal/log"
	"github.com/perchrun/perch/internal/plugin"
	"github.com/perchrun/perch/internal/plugins/apps"
	"github.com/perchrun/perch/internal/plugins/calc"
	"github.com/perchrun/perch/internal/plugins/control"
	"github.com/perchrun/perch/internal/plugins/convert"
	"github.com/perchrun/perch/internal/plugins/dice"
	"github.com/perchrun/perch/internal/plugins/files"
	"github.com/perchrun/perch/internal/plugins/script"
	"github.com/perchrun/perch/internal/storage"
	"github.com/perchrun/perch/internal/tui"
)

var version = "0.1.0-dev"

// indexFingerprintKey is the meta row carrying the hash of the files config
// section. A mismatch on startup forces a full reindex.
const indexFingerprintKey = "index_fingerprint"

// historyRetention is how long launch records are kept before the sweep
// ticker prunes them.
const historyRetention = 90 * 24 * time.Hour

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "query":
		return runQuery(args)
	case "reindex":
		return runReindex(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`perch - keyboard-driven launcher with pluggable result providers

Usage:
  perch <command> [flags]

Commands:
  start      Run the launcher (and its local control API) in the foreground
  query      Run a one-shot query against a running instance
  reindex    Ask a running instance to rebuild its file index
  version    Show version information
  help       Show this help message

Use 'perch <command> --help' for command-specific flags.
`)
}

// --- version ---

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := versionInfo{Version: version, Commit: readBuildSetting("vcs.revision")}
	if info.Commit == "" {
		info.Commit = "unknown"
	} else if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("perch %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	return 0
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// --- start ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	headless := fs.Bool("headless", false, "Run without the interactive launcher (control API only)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		*configPath = defaultConfigPath()
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create data dir: %v\n", err)
		return 1
	}

	// The TUI owns stdout, so the log goes to a file in the data dir.
	logPath := filepath.Join(cfg.DataDir, "perch.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return 1
	}
	defer logFile.Close()
	log.Setup(cfg.LogLevel, logFile)
	logger := log.WithComponent("main")
	logger.Info("perch starting", "version", version, "config", *configPath)

	lockPath := filepath.Join(cfg.DataDir, "perch.lock")
	pidLock, err := lock.Acquire(lockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Another instance appears to be running: %v\n", err)
		logger.Error("failed to acquire pid lock", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, filepath.Join(cfg.DataDir, "perch.db"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer db.Close()

	hub := events.NewHub(256)
	ix := index.New(&cfg.Files, hub)

	fingerprint := cfg.IndexFingerprint()
	stored, err := storage.GetMeta(ctx, db, indexFingerprintKey)
	if err != nil {
		logger.Warn("failed to read index fingerprint", "error", err)
	}
	if cfg.Files.ReindexAtStartup || stored != fingerprint {
		if stored != fingerprint {
			logger.Info("files configuration changed, forcing a full reindex")
		}
		go func() {
			if err := ix.Rebuild(ctx); err != nil {
				logger.Error("initial index build failed", "error", err)
				return
			}
			if err := storage.SetMeta(ctx, db, indexFingerprintKey, fingerprint); err != nil {
				logger.Warn("failed to store index fingerprint", "error", err)
			}
		}()
	}

	errCh := make(chan error, 3)

	if cfg.Files.Watch {
		watcher, err := index.NewWatcher(ix)
		if err != nil {
			logger.Warn("file watcher unavailable", "error", err)
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil && err != context.Canceled {
					errCh <- fmt.Errorf("watcher: %w", err)
				}
			}()
		}
	}

	hist := history.NewStore(db, hub)
	httpCache := cache.NewHTTPCache(db, cfg.Cache.HTTPTTL)

	registry, err := buildRegistry(cfg, ix, hist, httpCache, logPath, *configPath)
	if err != nil {
		logger.Error("failed to assemble plugin registry", "error", err)
		return 1
	}
	registry.Init(ctx)
	logger.Info("plugins registered", "count", registry.Len())

	if cfg.API.Enabled {
		server := api.New(api.Config{Listen: cfg.API.Listen},
			searcher{registry: registry, hub: hub}, ix, hub)
		go func() {
			if err := server.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
	}

	if cfg.Cache.SweepEvery > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Cache.SweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					httpCache.SweepExpired(ctx)
					hub.Publish(events.TypeCacheSwept, nil)
					if _, err := hist.Prune(ctx, historyRetention); err != nil {
						logger.Warn("history prune failed", "error", err)
					}
				}
			}
		}()
	}

	if *headless {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		logger.Info("perch running headless (press Ctrl+C to stop)")
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			cancel()
		case err := <-errCh:
			logger.Error("component failed", "error", err)
			cancel()
			return 1
		}
		logger.Info("perch stopped")
		return 0
	}

	collector := collect.NewCollector(cfg.Collector.SnapshotInterval)
	collector.Start(ctx)

	program := tea.NewProgram(tui.New(registry, collector.Messages()), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	logger.Info("perch stopped")
	return 0
}

// buildRegistry assembles the session plugin list. Registration order is the
// dispatch order entries are tagged with.
func buildRegistry(cfg *config.Config, ix *index.Index, hist *history.Store,
	rates *cache.HTTPCache, logPath, configPath string) (*plugin.Registry, error) {

	registry := plugin.NewRegistry()
	native := []plugin.Plugin{
		control.New(logPath, configPath),
		dice.New(),
		calc.New(),
		convert.New(convert.WithRates(rates)),
		apps.New(nil, cfg.Cache.AppsTTL, hist),
		files.New(ix),
	}
	for _, p := range native {
		if !cfg.PluginEnabled(p.Prefix()) {
			continue
		}
		if err := registry.Add(p); err != nil {
			return nil, err
		}
	}
	for _, p := range script.Discover(cfg.Plugins.ScriptDirs) {
		if !cfg.PluginEnabled(p.Prefix()) {
			continue
		}
		if err := registry.Add(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// searcher adapts the plugin registry to the API's one-shot query seam.
type searcher struct {
	registry *plugin.Registry
	hub      *events.Hub
}

func (s searcher) Search(ctx context.Context, query string) ([]collect.GenericEntry, error) {
	entries, err := collect.Once(ctx, s.registry.Runners(), query)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(events.TypeQueryFinished, map[string]any{
		"query":   query,
		"entries": len(entries),
	})
	return entries, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "perch", "config.yaml")
}

// --- query / reindex (clients of a running instance) ---

var apiClient = &http.Client{Timeout: 10 * time.Second}

func runQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:7345", "Control API URL of the running instance")
	jsonOut := fs.Bool("json", false, "Output the raw JSON response")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: perch query [--api-url URL] [--json] <query...>")
		return 1
	}
	query := strings.Join(fs.Args(), " ")

	payload, _ := json.Marshal(map[string]string{"query": query})
	resp, err := apiClient.Post(*apiURL+"/v1/query", "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed (is 'perch start' running?): %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		return 1
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Query failed: %s\n", strings.TrimSpace(string(body)))
		return 1
	}

	if *jsonOut {
		fmt.Println(strings.TrimSpace(string(body)))
		return 0
	}

	var decoded struct {
		Entries []struct {
			Name     string `json:"name"`
			Subtitle string `json:"subtitle"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	if len(decoded.Entries) == 0 {
		fmt.Println("no results")
		return 0
	}
	for _, e := range decoded.Entries {
		if e.Subtitle != "" {
			fmt.Printf("%s\t%s\n", e.Name, e.Subtitle)
		} else {
			fmt.Println(e.Name)
		}
	}
	return 0
}

func runReindex(args []string) int {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:7345", "Control API URL of the running instance")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	resp, err := apiClient.Post(*apiURL+"/v1/reindex", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed (is 'perch start' running?): %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		fmt.Fprintf(os.Stderr, "Reindex failed: %s\n", strings.TrimSpace(string(body)))
		return 1
	}
	fmt.Println("Reindex complete")
	return 0
}
