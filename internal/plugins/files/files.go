// Package files answers queries from the filesystem index.
package files

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/index"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
)

// Plugin searches the file index, prefix "file".
type Plugin struct {
	index *index.Index

	// open opens a path with the desktop's default handler. Swappable for
	// tests.
	open func(path string) error
}

func New(ix *index.Index) *Plugin {
	return &Plugin{index: ix, open: openPath}
}

func (p *Plugin) Prefix() string { return "file" }

func (p *Plugin) Init(context.Context) error { return nil }

func (p *Plugin) Actions() []plugin.Action {
	return []plugin.Action{plugin.DefaultAction("Open", "open")}
}

func (p *Plugin) GetForValues(_ context.Context, input *match.Input, sink *collect.TaggedSink) {
	// The index can hold hundreds of thousands of entries, so the scan leans
	// on the sink's per-element cancellation check to stay preemptible.
	snapshot := p.index.Files()
	sink.Commit(func(yield func(collect.Entry) bool) {
		for _, f := range snapshot {
			if !input.Matches(f.Name) {
				continue
			}
			e := collect.Entry{
				Name: f.Path,
				Data: collect.NewData(f.Path),
			}
			if !yield(e) {
				return
			}
		}
	})
}

func (p *Plugin) Handle(_ context.Context, data collect.Data, _ string) (plugin.Effect, error) {
	path := collect.As[string](data)
	if err := p.open(path); err != nil {
		return plugin.Effect{}, fmt.Errorf("open %q: %w", path, err)
	}
	return plugin.Effect{Kind: plugin.EffectNone}, nil
}

func openPath(path string) error {
	return exec.Command("xdg-open", path).Start()
}
