package events

import "encoding/json"

// Kind tags the canonical classification of a raw frame.
type Kind string

const (
	// KindStatus is a bare lifecycle status transition.
	KindStatus Kind = "status"
	// KindSnapshot is a full connection snapshot (which also implies a status).
	KindSnapshot Kind = "snapshot"
	// KindPrompt carries one or more prompt results.
	KindPrompt Kind = "prompt"
	// KindTerminal is the out-of-band end-of-session signal ("done").
	KindTerminal Kind = "terminal"
	// KindDataComplete is the legacy direct data-complete outcome.
	KindDataComplete Kind = "data_complete"
	// KindPromptComplete is the legacy direct prompt-complete outcome.
	KindPromptComplete Kind = "prompt_complete"
	// KindTransportError is a transport-level failure with a stable code.
	KindTransportError Kind = "transport_error"
	// KindRaw is an unrecognized frame, forwarded to message listeners only.
	KindRaw Kind = "raw"
)

// Stable error codes for transport-level failures.
const (
	CodeWebSocketConnectionError   = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketError             = "WEBSOCKET_ERROR"
	CodeWebSocketReconnectionError = "WEBSOCKET_RECONNECTION_ERROR"
	CodeWebSocketReconnectFailed   = "WEBSOCKET_RECONNECTION_FAILED"
)

// Snapshot is the latest known full state of a session. A later snapshot
// fully replaces an earlier one; snapshots are never merged.
type Snapshot struct {
	ID            string           `json:"id"`
	Status        Status           `json:"status"`
	Data          json.RawMessage  `json:"data,omitempty"`
	PromptResults []PromptSnapshot `json:"promptResults"`
}

// PromptSnapshot is one prompt's state as carried inside a frame.
type PromptSnapshot struct {
	Name     string          `json:"name"`
	PromptID string          `json:"promptId,omitempty"`
	Status   string          `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// PromptStatusCompleted is the only inner prompt status surfaced to hosts.
const PromptStatusCompleted = "completed"

// Terminal is the payload of a "done" frame. Success defaults to true when
// the field is absent from the wire.
type Terminal struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TransportError describes a transport-level failure.
type TransportError struct {
	Code    string
	Message string
}

// Event is the tagged union produced by Normalize. Exactly one of the
// kind-specific fields is populated, selected by Kind; Name and Data always
// carry the raw frame so generic message listeners can be fed regardless of
// classification.
type Event struct {
	Kind Kind

	// Name is the raw frame name as received.
	Name string
	// Data is the raw frame payload as received.
	Data json.RawMessage

	// Status is set for KindStatus and KindSnapshot.
	Status Status
	// Snapshot is set for KindSnapshot.
	Snapshot *Snapshot
	// Prompts is set for KindPrompt and KindPromptComplete.
	Prompts []PromptSnapshot
	// Terminal is set for KindTerminal.
	Terminal *Terminal
	// Transport is set for KindTransportError.
	Transport *TransportError
}
