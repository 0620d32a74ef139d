package events

import (
	"encoding/json"
	"log"
)

// transportCodes maps transport-origin frame names to stable error codes.
// A frame literally named "error" is classified as a status event instead
// (legacy per-status channels take precedence); the transport layer reports
// its own failures through Failure, not through Normalize.
var transportCodes = map[string]string{
	"connect_error":    CodeWebSocketConnectionError,
	"error":            CodeWebSocketError,
	"reconnect_error":  CodeWebSocketReconnectionError,
	"reconnect_failed": CodeWebSocketReconnectFailed,
}

// Normalize classifies one raw frame into a canonical Event. It never
// returns an error: frames that fit no known shape come back as KindRaw, and
// a status value outside the known enumeration is logged but still forwarded.
func Normalize(name string, data json.RawMessage) Event {
	ev := Event{Kind: KindRaw, Name: name, Data: data}

	// Snapshot frames, by name or by shape (both "id" and "status" present).
	if name == "connection" || looksLikeSnapshot(data) {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err == nil && snap.ID != "" {
			ev.Kind = KindSnapshot
			ev.Snapshot = &snap
			ev.Status = warned(snap.Status)
			return ev
		}
		// A malformed connection frame still reaches message listeners.
		return ev
	}

	switch name {
	case "status":
		if st, ok := unwrapStatus(data); ok {
			ev.Kind = KindStatus
			ev.Status = warned(st)
		}
		return ev

	case "status_update", "connection_status":
		var body struct {
			Status Status `json:"status"`
		}
		if err := json.Unmarshal(data, &body); err == nil && body.Status != "" {
			ev.Kind = KindStatus
			ev.Status = warned(body.Status)
		}
		return ev

	case "prompt":
		ev.Kind = KindPrompt
		ev.Prompts = completedOnly(parsePrompts(data))
		return ev

	case "done":
		var body struct {
			Success *bool           `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		term := Terminal{Success: true}
		if err := json.Unmarshal(data, &body); err == nil {
			if body.Success != nil {
				term.Success = *body.Success
			}
			term.Data = body.Data
		}
		ev.Kind = KindTerminal
		ev.Terminal = &term
		return ev

	case "DATA_COMPLETE":
		ev.Kind = KindDataComplete
		return ev

	case "PROMPT_COMPLETE":
		// Legacy direct outcome: no inner status interpretation.
		ev.Kind = KindPromptComplete
		ev.Prompts = parsePrompts(data)
		return ev

	case "connect_error", "reconnect_error", "reconnect_failed":
		ev.Kind = KindTransportError
		ev.Transport = &TransportError{
			Code:    transportCodes[name],
			Message: string(data),
		}
		return ev
	}

	// Legacy per-status event channels: the frame name is the status.
	if st := Status(name); st.Known() {
		ev.Kind = KindStatus
		ev.Status = st
		return ev
	}

	return ev
}

// Failure builds the Event for a failure originating in the transport itself
// (dial error, read error, reconnect exhaustion) rather than from a wire frame.
func Failure(code string, msg string) Event {
	return Event{
		Kind:      KindTransportError,
		Name:      frameNameFor(code),
		Data:      mustJSONString(msg),
		Transport: &TransportError{Code: code, Message: msg},
	}
}

func frameNameFor(code string) string {
	for name, c := range transportCodes {
		if c == code {
			return name
		}
	}
	return "error"
}

func mustJSONString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// looksLikeSnapshot reports whether the payload is an object carrying both
// "id" and "status" fields, the duck-typed snapshot shape.
func looksLikeSnapshot(data json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, hasID := probe["id"]
	_, hasStatus := probe["status"]
	return hasID && hasStatus
}

// unwrapStatus accepts either a bare status string or a single-element array
// containing one.
func unwrapStatus(data json.RawMessage) (Status, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return Status(s), true
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 && arr[0] != "" {
		return Status(arr[0]), true
	}
	return "", false
}

// parsePrompts accepts a single prompt object or an array of them.
func parsePrompts(data json.RawMessage) []PromptSnapshot {
	var many []PromptSnapshot
	if err := json.Unmarshal(data, &many); err == nil {
		return many
	}
	var one PromptSnapshot
	if err := json.Unmarshal(data, &one); err == nil && one.Name != "" {
		return []PromptSnapshot{one}
	}
	return nil
}

func completedOnly(prompts []PromptSnapshot) []PromptSnapshot {
	out := prompts[:0:0]
	for _, p := range prompts {
		if p.Status == PromptStatusCompleted {
			out = append(out, p)
		}
	}
	return out
}

// warned logs unknown status values before passing them through unchanged.
func warned(st Status) Status {
	if !st.Known() {
		log.Printf("passage: unknown connection status %q (forwarding anyway)", st)
	}
	return st
}
