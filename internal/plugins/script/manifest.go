// Package script runs external executables as plugins, speaking the JSON
// stdio protocol.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/perchrun/perch/internal/protocol"
)

const manifestFilename = "manifest.yaml"

// Manifest defines the structure of a script plugin's manifest.yaml file.
type Manifest struct {
	Name        string            `yaml:"name"`
	Prefix      string            `yaml:"prefix"`
	Version     string            `yaml:"version"`
	Protocol    int               `yaml:"protocol"`
	Entrypoint  string            `yaml:"entrypoint"`
	Description string            `yaml:"description,omitempty"`
	Actions     []protocol.Action `yaml:"actions,omitempty"`
}

func loadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

func validateManifest(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if strings.ContainsAny(m.Prefix, " \t") {
		return fmt.Errorf("prefix must not contain whitespace: %q", m.Prefix)
	}
	if m.Protocol != protocol.Version {
		return fmt.Errorf("unsupported protocol version %d (supported: %d)", m.Protocol, protocol.Version)
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	// Check for path traversal in entrypoint
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}
	return nil
}

// validateEntrypoint enforces that the entrypoint lives inside the plugin
// directory and is executable.
func validateEntrypoint(entrypointPath, pluginDir string) error {
	resolved, err := filepath.EvalSymlinks(entrypointPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}
	resolvedDir, err := filepath.EvalSymlinks(pluginDir)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin dir symlink: %w", err)
	}
	if !strings.HasPrefix(resolved, resolvedDir+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under plugin directory %s", resolved, resolvedDir)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolved)
	}
	return nil
}
