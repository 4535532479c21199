package plugin

import (
	"context"
	"fmt"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/log"
)

// Registry holds the ordered plugin list for a session. The order is the
// dispatch order and also the plugin index space entries are tagged with, so
// the list is immutable once a session starts.
type Registry struct {
	plugins []Plugin
	byName  map[string]Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Plugin)}
}

// Add registers a plugin. Prefixes must be unique.
func (r *Registry) Add(p Plugin) error {
	name := p.Prefix()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.plugins = append(r.plugins, p)
	r.byName[name] = p
	return nil
}

// Get retrieves a plugin by its prefix.
func (r *Registry) Get(prefix string) (Plugin, bool) {
	p, ok := r.byName[prefix]
	return p, ok
}

// At returns the plugin at the given dispatch index, as stamped on a
// GenericEntry.
func (r *Registry) At(index int) (Plugin, bool) {
	if index < 0 || index >= len(r.plugins) {
		return nil, false
	}
	return r.plugins[index], true
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	return len(r.plugins)
}

// Runners returns the ordered dispatch list handed to the collector.
func (r *Registry) Runners() []collect.Runner {
	out := make([]collect.Runner, len(r.plugins))
	for i, p := range r.plugins {
		out[i] = p
	}
	return out
}

// Init initializes every plugin in registration order. A failing plugin is
// logged and skipped, it does not abort the session.
func (r *Registry) Init(ctx context.Context) {
	logger := log.WithComponent("plugin")
	for _, p := range r.plugins {
		if err := p.Init(ctx); err != nil {
			logger.Warn("plugin init failed", "plugin", p.Prefix(), "error", err)
		}
	}
}
