package script

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/log"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
	"github.com/perchrun/perch/internal/protocol"
)

// handleTimeout bounds an action invocation; query invocations are bounded
// by the cycle context instead.
const handleTimeout = 10 * time.Second

// Plugin adapts one discovered script to the in-process plugin contract.
// Each invocation runs the entrypoint as a fresh subprocess; cancellation
// kills the process.
type Plugin struct {
	manifest   *Manifest
	entrypoint string
}

// Discover scans dirs for subdirectories holding a manifest.yaml and returns
// one Plugin per valid manifest. Invalid plugins are logged and skipped.
func Discover(dirs []string) []*Plugin {
	logger := log.WithComponent("script")
	var out []*Plugin

	for _, root := range dirs {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || d.Name() != manifestFilename {
				return nil
			}

			dir := filepath.Dir(path)
			p, err := load(dir)
			if err != nil {
				logger.Warn("skipping script plugin", "path", dir, "error", err)
				return nil
			}
			logger.Info("loaded script plugin",
				"plugin", p.manifest.Name,
				"prefix", p.manifest.Prefix,
				"version", p.manifest.Version)
			out = append(out, p)
			return nil
		})
		if err != nil {
			logger.Warn("cannot scan script plugin root", "root", root, "error", err)
		}
	}
	return out
}

func load(dir string) (*Plugin, error) {
	m, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}
	entrypoint := filepath.Join(dir, m.Entrypoint)
	if err := validateEntrypoint(entrypoint, dir); err != nil {
		return nil, err
	}
	return &Plugin{manifest: m, entrypoint: entrypoint}, nil
}

func (p *Plugin) Prefix() string { return p.manifest.Prefix }

func (p *Plugin) Init(ctx context.Context) error {
	// Describe doubles as a health check: a script that cannot answer it
	// will not answer queries either.
	_, err := p.invoke(ctx, &protocol.Request{
		Protocol: protocol.Version,
		Command:  protocol.CommandDescribe,
	})
	return err
}

func (p *Plugin) Actions() []plugin.Action {
	actions := make([]plugin.Action, 0, len(p.manifest.Actions))
	for _, a := range p.manifest.Actions {
		actions = append(actions, plugin.Action{
			Name:     a.Name,
			ID:       a.ID,
			Shortcut: a.Shortcut,
			Closes:   a.Closes,
		})
	}
	if len(actions) == 0 {
		actions = append(actions, plugin.DefaultAction("Run", "run"))
	}
	return actions
}

func (p *Plugin) GetForValues(ctx context.Context, input *match.Input, sink *collect.TaggedSink) {
	resp, err := p.invoke(ctx, &protocol.Request{
		Protocol:  protocol.Version,
		Command:   protocol.CommandQuery,
		Query:     input.Raw(),
		Tokens:    input.Tokens(),
		HasPrefix: input.HasPrefix(),
	})
	if err != nil {
		log.WithPlugin(p.manifest.Name).Debug("query failed", "error", err)
		return
	}

	sink.Commit(func(yield func(collect.Entry) bool) {
		for _, e := range resp.Entries {
			entry := collect.Entry{
				Name:         e.Name,
				Subtitle:     e.Subtitle,
				Data:         collect.NewData(e.Data),
				PerfectMatch: e.PerfectMatch,
			}
			if !yield(entry) {
				return
			}
		}
	})
}

func (p *Plugin) Handle(ctx context.Context, data collect.Data, actionID string) (plugin.Effect, error) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	resp, err := p.invoke(ctx, &protocol.Request{
		Protocol: protocol.Version,
		Command:  protocol.CommandHandle,
		ActionID: actionID,
		Data:     collect.As[map[string]any](data),
	})
	if err != nil {
		return plugin.Effect{}, err
	}
	if resp.Effect == nil {
		return plugin.Effect{Kind: plugin.EffectNone}, nil
	}
	return effectFromWire(resp.Effect), nil
}

func effectFromWire(e *protocol.Effect) plugin.Effect {
	kinds := map[string]plugin.EffectKind{
		"none":      plugin.EffectNone,
		"copy":      plugin.EffectCopy,
		"set_query": plugin.EffectSetQuery,
		"hide":      plugin.EffectHide,
		"quit":      plugin.EffectQuit,
	}
	return plugin.Effect{Kind: kinds[e.Kind], Text: e.Text}
}

// invoke runs the entrypoint once: request on stdin, response on stdout.
// Cancelling ctx kills the subprocess, which is how a superseded query
// preempts a slow script.
func (p *Plugin) invoke(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var stdin bytes.Buffer
	if err := protocol.EncodeRequest(&stdin, req); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.entrypoint)
	cmd.Stdin = &stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("script %s: %w (stderr: %s)",
			p.manifest.Name, err, truncate(stderr.String(), 256))
	}

	resp, err := protocol.DecodeResponse(&stdout)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", p.manifest.Name, err)
	}
	if resp.Status == protocol.StatusError {
		return nil, fmt.Errorf("script %s: %s", p.manifest.Name, resp.Error)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
