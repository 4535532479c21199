// Package control exposes launcher self-management commands (quit, hide,
// logs, settings) as result entries.
package control

import (
	"context"
	"fmt"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
)

type command struct {
	name        string
	description string
	effect      plugin.EffectKind
}

var commands = []command{
	{"quit", "Exit the launcher entirely, not just hide the window.", plugin.EffectQuit},
	{"hide", "Hide the launcher window.", plugin.EffectHide},
	{"logs", "Open the latest launcher logs.", plugin.EffectNone},
	{"settings", "Open the configuration file.", plugin.EffectNone},
}

// Plugin matches control commands against the query.
type Plugin struct {
	// LogPath and ConfigPath are what the logs/settings commands open.
	LogPath    string
	ConfigPath string
	// Open launches a file in the user's preferred application. Nil means
	// the logs/settings commands only report the path.
	Open func(path string) error
}

func New(logPath, configPath string) *Plugin {
	return &Plugin{LogPath: logPath, ConfigPath: configPath}
}

func (p *Plugin) Prefix() string { return "control" }

func (p *Plugin) Init(context.Context) error { return nil }

func (p *Plugin) Actions() []plugin.Action {
	return []plugin.Action{plugin.DefaultAction("Execute Action", "run")}
}

func (p *Plugin) GetForValues(_ context.Context, input *match.Input, sink *collect.TaggedSink) {
	sink.Commit(func(yield func(collect.Entry) bool) {
		for i, cmd := range commands {
			if !input.Matches(cmd.name) {
				continue
			}
			e := collect.Entry{
				Name:     cmd.name,
				Subtitle: cmd.description,
				Data:     collect.NewData(i),
			}
			if !yield(e) {
				return
			}
		}
	})
}

func (p *Plugin) Handle(_ context.Context, data collect.Data, _ string) (plugin.Effect, error) {
	idx := collect.As[int](data)
	if idx < 0 || idx >= len(commands) {
		return plugin.Effect{}, fmt.Errorf("unknown control command index %d", idx)
	}
	cmd := commands[idx]

	switch cmd.name {
	case "logs":
		return p.open(p.LogPath)
	case "settings":
		return p.open(p.ConfigPath)
	default:
		return plugin.Effect{Kind: cmd.effect}, nil
	}
}

func (p *Plugin) open(path string) (plugin.Effect, error) {
	if p.Open == nil {
		return plugin.Effect{Kind: plugin.EffectCopy, Text: path}, nil
	}
	if err := p.Open(path); err != nil {
		return plugin.Effect{}, fmt.Errorf("open %q: %w", path, err)
	}
	return plugin.Effect{Kind: plugin.EffectNone}, nil
}
