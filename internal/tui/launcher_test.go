package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
)

// effectPlugin answers every action with a fixed effect.
type effectPlugin struct {
	effect plugin.Effect
}

func (p *effectPlugin) Prefix() string { return "control" }
func (p *effectPlugin) Actions() []plugin.Action {
	return []plugin.Action{plugin.DefaultAction("Run", "run")}
}
func (p *effectPlugin) Init(context.Context) error { return nil }
func (p *effectPlugin) Handle(context.Context, collect.Data, string) (plugin.Effect, error) {
	return p.effect, nil
}
func (p *effectPlugin) GetForValues(context.Context, *match.Input, *collect.TaggedSink) {}

func TestActionForKey(t *testing.T) {
	actions := []plugin.Action{
		plugin.DefaultAction("Run", "run"),
		plugin.SuggestAction("Suggest", "suggest"),
		plugin.ShortcutAction("Open", "open", "ctrl+o"),
	}

	tests := []struct {
		key    string
		wantID string
		wantOK bool
	}{
		{"enter", "run", true},
		{"tab", "suggest", true},
		{"ctrl+o", "open", true},
		{"ctrl+x", "", false},
	}
	for _, tt := range tests {
		got, ok := actionForKey(actions, tt.key)
		if ok != tt.wantOK || (ok && got.ID != tt.wantID) {
			t.Errorf("actionForKey(%q) = %q/%v, want %q/%v",
				tt.key, got.ID, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestFinishedBatchReplacesList(t *testing.T) {
	msgs := make(chan collect.Message)
	m := New(plugin.NewRegistry(), msgs)

	batch := collect.Finished{Entries: []collect.GenericEntry{
		{Entry: collect.Entry{Name: "a"}},
		{Entry: collect.Entry{Name: "b"}},
	}}
	next, _ := m.Update(collectorMsg(batch))
	m = next.(*Model)
	if len(m.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(m.entries))
	}

	smaller := collect.Finished{Entries: []collect.GenericEntry{
		{Entry: collect.Entry{Name: "c"}},
	}}
	m.cursor = 1
	next, _ = m.Update(collectorMsg(smaller))
	m = next.(*Model)
	if len(m.entries) != 1 {
		t.Fatalf("entries = %d, want batch to replace, not append", len(m.entries))
	}
	if m.cursor != 0 {
		t.Fatalf("cursor = %d, want clamped to 0", m.cursor)
	}
}

func TestCursorStaysInBounds(t *testing.T) {
	msgs := make(chan collect.Message)
	m := New(plugin.NewRegistry(), msgs)
	m.entries = []collect.GenericEntry{
		{Entry: collect.Entry{Name: "a"}},
		{Entry: collect.Entry{Name: "b"}},
	}

	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyUp}

	for i := 0; i < 5; i++ {
		next, _ := m.Update(down)
		m = next.(*Model)
	}
	if m.cursor != 1 {
		t.Fatalf("cursor = %d after spamming down, want 1", m.cursor)
	}
	for i := 0; i < 5; i++ {
		next, _ := m.Update(up)
		m = next.(*Model)
	}
	if m.cursor != 0 {
		t.Fatalf("cursor = %d after spamming up, want 0", m.cursor)
	}
}

func TestHideDismissesWithoutQuitting(t *testing.T) {
	reg := plugin.NewRegistry()
	if err := reg.Add(&effectPlugin{effect: plugin.Effect{Kind: plugin.EffectHide}}); err != nil {
		t.Fatal(err)
	}
	m := New(reg, make(chan collect.Message))
	m.input.SetValue("hide")
	m.status = "copied: something"
	m.entries = []collect.GenericEntry{{Entry: collect.Entry{Name: "hide"}}}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(*Model)
	if cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatal("hide quit the program")
		}
	}
	if m.input.Value() != "" {
		t.Fatalf("query = %q, want cleared", m.input.Value())
	}
	if len(m.entries) != 0 || m.cursor != 0 || m.status != "" {
		t.Fatalf("interaction not reset: entries=%d cursor=%d status=%q",
			len(m.entries), m.cursor, m.status)
	}
}

func TestQuitEffectStopsProgram(t *testing.T) {
	reg := plugin.NewRegistry()
	if err := reg.Add(&effectPlugin{effect: plugin.Effect{Kind: plugin.EffectQuit}}); err != nil {
		t.Fatal(err)
	}
	m := New(reg, make(chan collect.Message))
	m.entries = []collect.GenericEntry{{Entry: collect.Entry{Name: "quit"}}}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("command did not quit")
	}
}

func TestSessionCloseQuits(t *testing.T) {
	msgs := make(chan collect.Message)
	m := New(plugin.NewRegistry(), msgs)

	_, cmd := m.Update(sessionClosedMsg{})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("command did not quit")
	}
}
