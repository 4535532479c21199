// Package tui renders the interactive launcher: a query box over an
// incrementally updating result list.
package tui

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/log"
	"github.com/perchrun/perch/internal/plugin"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// maxVisibleResults bounds the rendered list; batches can be much larger.
const maxVisibleResults = 12

// --- Messages ---

type collectorMsg collect.Message

type sessionClosedMsg struct{}

// Model is the launcher UI. It owns the collector session's controller and
// translates keystrokes into Start/Stop control messages.
type Model struct {
	registry *plugin.Registry
	messages <-chan collect.Message

	ctrl    *collect.Controller
	input   textinput.Model
	entries []collect.GenericEntry
	cursor  int
	status  string
	width   int
	height  int

	// copyText puts text on the system clipboard. Swappable for tests.
	copyText func(text string) error
}

// New creates the launcher model over a started collector session.
func New(registry *plugin.Registry, messages <-chan collect.Message) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type to search..."
	ti.Focus()
	ti.Prompt = "> "

	return &Model{
		registry: registry,
		messages: messages,
		input:    ti,
		copyText: copyToClipboard,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.receiveNext())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case collectorMsg:
		switch inner := collect.Message(msg).(type) {
		case collect.Ready:
			m.ctrl = inner.Controller
		case collect.Finished:
			// Each batch fully replaces the list.
			m.entries = inner.Entries
			if m.cursor >= len(m.entries) {
				m.cursor = 0
			}
		}
		return m, m.receiveNext()

	case sessionClosedMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if m.ctrl != nil {
			m.ctrl.Stop()
		}
		return m, tea.Quit

	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil

	case "enter", "tab":
		return m, m.invoke(msg.String())
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before && m.ctrl != nil {
		// Every keystroke supersedes the running cycle.
		if !m.ctrl.Start(m.registry.Runners(), m.input.Value()) {
			return m, tea.Quit
		}
	}
	return m, cmd
}

// invoke runs the selected entry's action for the pressed key and applies
// the resulting effect.
func (m *Model) invoke(key string) tea.Cmd {
	if m.cursor >= len(m.entries) {
		return nil
	}
	entry := m.entries[m.cursor]
	p, ok := m.registry.At(entry.Plugin)
	if !ok {
		return nil
	}

	action, ok := actionForKey(p.Actions(), key)
	if !ok {
		return nil
	}

	effect, err := p.Handle(context.Background(), entry.Data, action.ID)
	if err != nil {
		log.WithComponent("tui").Warn("action failed",
			"plugin", p.Prefix(), "action", action.ID, "error", err)
		m.status = "action failed: " + err.Error()
		return nil
	}

	switch effect.Kind {
	case plugin.EffectQuit, plugin.EffectNone:
		if m.ctrl != nil {
			m.ctrl.Stop()
		}
		return tea.Quit
	case plugin.EffectHide:
		// A terminal has no window to hide, so dismiss the current
		// interaction: clear the query and start over.
		m.input.SetValue("")
		m.entries = nil
		m.cursor = 0
		m.status = ""
		if m.ctrl != nil {
			m.ctrl.Start(m.registry.Runners(), "")
		}
	case plugin.EffectCopy:
		if err := m.copyText(effect.Text); err != nil {
			m.status = "copy failed"
		} else {
			m.status = "copied: " + effect.Text
		}
		if action.Closes {
			return tea.Quit
		}
	case plugin.EffectSetQuery:
		m.input.SetValue(effect.Text)
		m.input.CursorEnd()
		if m.ctrl != nil {
			m.ctrl.Start(m.registry.Runners(), effect.Text)
		}
	}
	return nil
}

// actionForKey picks the action bound to key: enter selects the default
// (first) action, tab the suggest action, anything else a matching shortcut.
func actionForKey(actions []plugin.Action, key string) (plugin.Action, bool) {
	if len(actions) == 0 {
		return plugin.Action{}, false
	}
	if key == "enter" {
		return actions[0], true
	}
	for _, a := range actions {
		if a.Shortcut == key {
			return a, true
		}
	}
	return plugin.Action{}, false
}

// --- View ---

func (m *Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var rows []string
	for i, e := range m.entries {
		if i >= maxVisibleResults {
			rows = append(rows, subtitleStyle.Render(
				fmt.Sprintf("  ... and %d more", len(m.entries)-maxVisibleResults)))
			break
		}
		line := e.Name
		if e.Subtitle != "" {
			line += "  " + subtitleStyle.Render(e.Subtitle)
		}
		if i == m.cursor {
			line = selectedStyle.Render("▸ " + line)
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}
	if len(rows) == 0 {
		rows = append(rows, subtitleStyle.Render("  no results"))
	}

	parts := []string{
		borderStyle.Width(m.width - 6).Render(m.input.View()),
		borderStyle.Width(m.width - 6).Render(strings.Join(rows, "\n")),
	}
	if m.status != "" {
		parts = append(parts, statusStyle.Render(m.status))
	}
	parts = append(parts, helpStyle.Render(" [enter] Run • [tab] Suggest • [esc] Quit"))

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// --- Commands ---

// receiveNext pumps the next collector message into the bubbletea loop.
func (m *Model) receiveNext() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.messages
		if !ok {
			return sessionClosedMsg{}
		}
		return collectorMsg(msg)
	}
}

// copyToClipboard shells out to the first clipboard tool it finds.
func copyToClipboard(text string) error {
	for _, tool := range [][]string{{"wl-copy"}, {"xclip", "-selection", "clipboard"}} {
		if _, err := exec.LookPath(tool[0]); err != nil {
			continue
		}
		cmd := exec.Command(tool[0], tool[1:]...)
		cmd.Stdin = strings.NewReader(text)
		return cmd.Run()
	}
	return fmt.Errorf("no clipboard tool found (tried wl-copy, xclip)")
}
