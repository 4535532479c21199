// Package config loads and validates the launcher configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config is the root configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	DataDir   string          `yaml:"data_dir"`
	API       APIConfig       `yaml:"api"`
	Collector CollectorConfig `yaml:"collector"`
	Files     FilesConfig     `yaml:"files"`
	Cache     CacheConfig     `yaml:"cache"`
	Plugins   PluginsConfig   `yaml:"plugins"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// CollectorConfig tunes the collection engine.
type CollectorConfig struct {
	// SnapshotInterval bounds how often a running cycle re-emits results.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// FilesConfig configures the filesystem index.
type FilesConfig struct {
	Roots            []string `yaml:"roots"`
	IgnoreDirs       []string `yaml:"ignore_dirs"`
	Watch            bool     `yaml:"watch"`
	ReindexAtStartup bool     `yaml:"reindex_at_startup"`
}

// CacheConfig tunes the TTL caches.
type CacheConfig struct {
	AppsTTL    time.Duration `yaml:"apps_ttl"`
	HTTPTTL    time.Duration `yaml:"http_ttl"`
	SweepEvery time.Duration `yaml:"sweep_every"`
}

// PluginsConfig enables/disables plugins and points at script plugin roots.
type PluginsConfig struct {
	Disabled   []string `yaml:"disabled"`
	ScriptDirs []string `yaml:"script_dirs"`
}

// Defaults returns a configuration with sane defaults applied.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogLevel: "INFO",
		DataDir:  filepath.Join(home, ".local", "share", "perch"),
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:7345",
		},
		Collector: CollectorConfig{
			SnapshotInterval: 200 * time.Millisecond,
		},
		Files: FilesConfig{
			Roots:            []string{home},
			IgnoreDirs:       []string{"node_modules", "target", ".git"},
			Watch:            true,
			ReindexAtStartup: true,
		},
		Cache: CacheConfig{
			AppsTTL:    5 * time.Minute,
			HTTPTTL:    10 * time.Minute,
			SweepEvery: 10 * time.Minute,
		},
	}
}

// Load reads and parses configuration from path, expanding ${VAR}
// environment references and applying defaults for missing fields. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = expandEnv(data)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} references with environment values. Unset
// variables expand to an empty string.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envVarPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if cfg.Collector.SnapshotInterval < 0 {
		return fmt.Errorf("collector.snapshot_interval must not be negative")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when the API is enabled")
	}
	for _, root := range cfg.Files.Roots {
		if root == "" {
			return fmt.Errorf("files.roots must not contain empty entries")
		}
	}
	return nil
}

// IndexFingerprint hashes the files section. A changed fingerprint forces a
// full reindex on startup since the persisted index may no longer reflect
// the configured roots and filters.
func (c *Config) IndexFingerprint() string {
	h := blake3.New()
	for _, root := range c.Files.Roots {
		h.Write([]byte(root))
		h.Write([]byte{0})
	}
	for _, dir := range c.Files.IgnoreDirs {
		h.Write([]byte(dir))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// PluginEnabled reports whether a plugin prefix is enabled.
func (c *Config) PluginEnabled(prefix string) bool {
	for _, d := range c.Plugins.Disabled {
		if d == prefix {
			return false
		}
	}
	return true
}
