// Package protocol defines the JSON-over-stdio contract between the daemon
// and external script plugins.
package protocol

// Commands a script plugin must understand.
const (
	CommandDescribe = "describe"
	CommandQuery    = "query"
	CommandHandle   = "handle"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is the envelope written to a script plugin's stdin.
type Request struct {
	Protocol int    `json:"protocol"`
	Command  string `json:"command"` // describe | query | handle

	// Query fields, set for the query command.
	Query     string   `json:"query,omitempty"`
	Tokens    []string `json:"tokens,omitempty"`
	HasPrefix bool     `json:"has_prefix,omitempty"`

	// Handle fields, set for the handle command.
	ActionID string         `json:"action_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Response is the envelope read from a script plugin's stdout.
type Response struct {
	Status string `json:"status"` // ok | error
	Error  string `json:"error,omitempty"`

	// Describe fields.
	Prefix  string   `json:"prefix,omitempty"`
	Actions []Action `json:"actions,omitempty"`

	// Query fields.
	Entries []Entry `json:"entries,omitempty"`

	// Handle fields.
	Effect *Effect `json:"effect,omitempty"`
}

// Entry is one result row produced by a script plugin.
type Entry struct {
	Name         string         `json:"name"`
	Subtitle     string         `json:"subtitle,omitempty"`
	PerfectMatch bool           `json:"perfect_match,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Action is one invocable action advertised by describe.
type Action struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	Shortcut string `json:"shortcut,omitempty"`
	Closes   bool   `json:"closes,omitempty"`
}

// Effect tells the launcher what to do after a handled action.
type Effect struct {
	Kind string `json:"kind"` // none | copy | set_query | hide | quit
	Text string `json:"text,omitempty"`
}
