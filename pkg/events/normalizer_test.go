package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_StatusShapesAreEquivalent(t *testing.T) {
	// The same downstream status dispatch must come out of every legacy shape.
	frames := []struct {
		name string
		data string
	}{
		{"status", `"connected"`},
		{"status", `["connected"]`},
		{"connected", `null`},
		{"status_update", `{"status":"connected","message":"ok","timestamp":123}`},
		{"connection_status", `{"status":"connected"}`},
	}

	for _, f := range frames {
		ev := Normalize(f.name, json.RawMessage(f.data))
		assert.Equal(t, KindStatus, ev.Kind, "frame %s %s", f.name, f.data)
		assert.Equal(t, StatusConnected, ev.Status, "frame %s %s", f.name, f.data)
	}
}

func TestNormalize_ConnectionFrameIsSnapshotAndStatus(t *testing.T) {
	ev := Normalize("connection", json.RawMessage(
		`{"id":"c1","status":"data_available","data":[{"a":1}],"promptResults":[]}`))

	require.Equal(t, KindSnapshot, ev.Kind)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "c1", ev.Snapshot.ID)
	assert.Equal(t, StatusDataAvailable, ev.Snapshot.Status)
	assert.Equal(t, StatusDataAvailable, ev.Status)
	assert.JSONEq(t, `[{"a":1}]`, string(ev.Snapshot.Data))
}

func TestNormalize_DuckTypedSnapshot(t *testing.T) {
	// Any frame whose payload carries both id and status is a snapshot,
	// whatever its name says.
	ev := Normalize("something_new", json.RawMessage(`{"id":"c9","status":"pending"}`))
	require.Equal(t, KindSnapshot, ev.Kind)
	assert.Equal(t, "c9", ev.Snapshot.ID)
	assert.Equal(t, StatusPending, ev.Status)
}

func TestNormalize_PromptFiltersToCompleted(t *testing.T) {
	ev := Normalize("prompt", json.RawMessage(`[
		{"name":"email","status":"completed","result":{"content":"x@y.com"}},
		{"name":"phone","status":"pending"},
		{"name":"address","status":"failed"}
	]`))

	require.Equal(t, KindPrompt, ev.Kind)
	require.Len(t, ev.Prompts, 1)
	assert.Equal(t, "email", ev.Prompts[0].Name)
}

func TestNormalize_PromptSingleObject(t *testing.T) {
	ev := Normalize("prompt", json.RawMessage(
		`{"name":"email","status":"completed","result":{"content":"x@y.com"}}`))
	require.Equal(t, KindPrompt, ev.Kind)
	require.Len(t, ev.Prompts, 1)
	assert.Equal(t, "email", ev.Prompts[0].Name)
}

func TestNormalize_LegacyPromptCompleteSkipsStatusFilter(t *testing.T) {
	ev := Normalize("PROMPT_COMPLETE", json.RawMessage(
		`[{"name":"email","status":"pending","result":{"content":"x"}}]`))
	require.Equal(t, KindPromptComplete, ev.Kind)
	require.Len(t, ev.Prompts, 1)
}

func TestNormalize_Done(t *testing.T) {
	t.Run("success defaults to true", func(t *testing.T) {
		ev := Normalize("done", json.RawMessage(`{"data":{"id":"c1"}}`))
		require.Equal(t, KindTerminal, ev.Kind)
		assert.True(t, ev.Terminal.Success)
		assert.JSONEq(t, `{"id":"c1"}`, string(ev.Terminal.Data))
	})

	t.Run("explicit failure", func(t *testing.T) {
		ev := Normalize("done", json.RawMessage(`{"success":false,"data":{"error":"rejected by user"}}`))
		require.Equal(t, KindTerminal, ev.Kind)
		assert.False(t, ev.Terminal.Success)
	})

	t.Run("empty payload", func(t *testing.T) {
		ev := Normalize("done", nil)
		require.Equal(t, KindTerminal, ev.Kind)
		assert.True(t, ev.Terminal.Success)
	})
}

func TestNormalize_TransportFrames(t *testing.T) {
	cases := map[string]string{
		"connect_error":    CodeWebSocketConnectionError,
		"reconnect_error":  CodeWebSocketReconnectionError,
		"reconnect_failed": CodeWebSocketReconnectFailed,
	}
	for name, code := range cases {
		ev := Normalize(name, json.RawMessage(`"boom"`))
		require.Equal(t, KindTransportError, ev.Kind, name)
		assert.Equal(t, code, ev.Transport.Code, name)
	}

	// A frame literally named "error" is a legacy per-status channel, not a
	// transport failure.
	ev := Normalize("error", nil)
	assert.Equal(t, KindStatus, ev.Kind)
	assert.Equal(t, StatusError, ev.Status)
}

func TestNormalize_UnknownFrameIsRaw(t *testing.T) {
	ev := Normalize("telemetry_blob", json.RawMessage(`{"x":1}`))
	assert.Equal(t, KindRaw, ev.Kind)
	assert.Equal(t, "telemetry_blob", ev.Name)
}

func TestNormalize_UnknownStatusForwardedFailOpen(t *testing.T) {
	ev := Normalize("status", json.RawMessage(`"half_connected"`))
	assert.Equal(t, KindStatus, ev.Kind)
	assert.Equal(t, Status("half_connected"), ev.Status)
}

func TestFailure(t *testing.T) {
	ev := Failure(CodeWebSocketError, "read: connection reset")
	require.Equal(t, KindTransportError, ev.Kind)
	assert.Equal(t, CodeWebSocketError, ev.Transport.Code)
	assert.Equal(t, "error", ev.Name)
}
