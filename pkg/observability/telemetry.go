package observability

import "log"

// Telemetry receives channel lifecycle events (connect attempt, success,
// failure, disconnect reason). Implementations must return quickly and must
// never fail the caller; the channel treats every emit as fire-and-forget.
type Telemetry interface {
	Emit(event string, fields map[string]any)
}

// NopTelemetry discards everything.
type NopTelemetry struct{}

func (NopTelemetry) Emit(string, map[string]any) {}

// LogTelemetry writes lifecycle events to the standard logger. Useful for
// development and for the demo CLI.
type LogTelemetry struct{}

func (LogTelemetry) Emit(event string, fields map[string]any) {
	if len(fields) == 0 {
		log.Printf("passage: telemetry %s", event)
		return
	}
	log.Printf("passage: telemetry %s %v", event, fields)
}
