// Package plugin defines the contract between the collection engine and the
// result providers, plus the session registry that holds them.
package plugin

import (
	"context"

	"github.com/perchrun/perch/internal/collect"
)

// Plugin is a result provider. The collector only needs the embedded Runner
// contract; Actions, Init and Handle serve the UI around it.
type Plugin interface {
	collect.Runner

	// Actions returns the invocable actions for entries this plugin owns.
	// The first action is the default (Enter).
	Actions() []Action

	// Init prepares the plugin for a session (scans, cache warmup). Called
	// once before the plugin is dispatched for the first time.
	Init(ctx context.Context) error

	// Handle invokes an action on a selected entry. The returned effect
	// tells the UI what to do next.
	Handle(ctx context.Context, data collect.Data, actionID string) (Effect, error)
}

// EffectKind enumerates what the UI should do after an action ran.
type EffectKind int

const (
	// EffectNone closes the launcher window and does nothing else.
	EffectNone EffectKind = iota
	// EffectCopy puts Text on the clipboard.
	EffectCopy
	// EffectSetQuery replaces the query field with Text, keeping the
	// window open.
	EffectSetQuery
	// EffectHide hides the launcher window.
	EffectHide
	// EffectQuit exits the launcher entirely.
	EffectQuit
)

// Effect is the UI-facing outcome of a handled action.
type Effect struct {
	Kind EffectKind
	Text string
}

// Action describes one invocable action on a result entry.
type Action struct {
	// Name is the human-readable label shown in the action list.
	Name string
	// ID is passed back to Handle when the action is invoked.
	ID string
	// Shortcut is a UI key chord like "ctrl+o"; empty means none.
	Shortcut string
	// Closes reports whether invoking the action closes the window.
	Closes bool
}

// DefaultAction constructs the default (Enter) action. It should always be
// the first entry of Actions.
func DefaultAction(name, id string) Action {
	return Action{Name: name, ID: id, Shortcut: "enter", Closes: true}
}

// SuggestAction constructs the suggest (Tab) action, which feeds a value
// back into the query and keeps the window open.
func SuggestAction(name, id string) Action {
	return Action{Name: name, ID: id, Shortcut: "tab"}
}

// ShortcutAction constructs an action bound to an explicit key chord.
func ShortcutAction(name, id, shortcut string) Action {
	return Action{Name: name, ID: id, Shortcut: shortcut, Closes: true}
}
