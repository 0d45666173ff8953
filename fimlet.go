// Package fimlet defines the request/response types for fimlet IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
package fimlet

// Completion sources.
const (
	SourceCache   = "cache"
	SourceBackend = "backend"
)

// Error codes returned to the editor client. Backend failures use the
// backend error kinds: "unauthorized", "not-found", "connection-error", "other".
const (
	CodeInvalidRequest = "invalid_request"
	CodeConfigError    = "config_error"
	CodeUnknownAction  = "unknown_action"
)

// Request is sent from the editor client to the daemon on every
// cursor-affecting edit.
type Request struct {
	// RequestID is a per-session incrementing identifier assigned by the client.
	// The daemon echoes it back in the response for ordering.
	RequestID int `json:"request_id"`
	// SessionID identifies the editor session. Each session has its own
	// debounce state and speculative cache.
	SessionID string `json:"session_id"`
	// Text is the full document text.
	Text string `json:"text"`
	// Line is the zero-based cursor line.
	Line int `json:"line"`
	// Character is the cursor offset within Line, in PositionEncoding units.
	Character int `json:"character"`
	// PositionEncoding is "utf-8" (default) or "utf-16".
	PositionEncoding string `json:"position_encoding,omitempty"`
	// Language is the editor language identifier of the document.
	Language string `json:"language,omitempty"`
}

// Completion is text to insert at the cursor.
type Completion struct {
	// Text is the insertable text.
	Text string `json:"text"`
	// Source is "cache" when served from the speculative cache without a
	// backend call, "backend" otherwise.
	Source string `json:"source"`
}

// Response is sent from the daemon back to the editor client.
type Response struct {
	// RequestID is echoed from the request for ordering on the client side.
	RequestID int `json:"request_id"`
	// Completions holds zero or one completion.
	Completions []Completion `json:"completions"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the editor client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "unauthorized", "connection-error").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// SessionRequest is sent from the editor client to manage a session.
type SessionRequest struct {
	// Type is always "end_session".
	Type string `json:"type"`
	// SessionID is the session to drop.
	SessionID string `json:"session_id"`
}

// SessionResponse is sent from the daemon in response to a SessionRequest.
type SessionResponse struct {
	// OK is true when the session was dropped or did not exist.
	OK bool `json:"ok"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}

// ConfigRequest is sent from the client for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", "default_prompt" or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Prompt is the default prompt template (for "default_prompt" action).
	Prompt string `json:"prompt,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
