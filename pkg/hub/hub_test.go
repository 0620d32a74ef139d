package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpassage/passage-go/pkg/events"
)

func TestSnapshotCatchUpOnSubscribe(t *testing.T) {
	h := New()
	h.SetSnapshot(events.Snapshot{ID: "c1", Status: events.StatusConnected})

	var got []events.Snapshot
	unsub := h.AddSnapshotListener(func(s events.Snapshot) {
		got = append(got, s)
	})
	defer unsub()

	// Replay happens synchronously inside AddSnapshotListener.
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)

	h.SetSnapshot(events.Snapshot{ID: "c1", Status: events.StatusDataAvailable})
	require.Len(t, got, 2)
	assert.Equal(t, events.StatusDataAvailable, got[1].Status)
}

func TestNoCatchUpWithoutSnapshot(t *testing.T) {
	h := New()
	calls := 0
	h.AddSnapshotListener(func(events.Snapshot) { calls++ })
	assert.Zero(t, calls)
}

func TestFanOutOrderAndUnsubscribe(t *testing.T) {
	h := New()
	var order []string
	unsubA := h.AddStatusListener(func(events.Status) { order = append(order, "a") })
	h.AddStatusListener(func(events.Status) { order = append(order, "b") })

	h.EmitStatus(events.StatusPending)
	assert.Equal(t, []string{"a", "b"}, order)

	unsubA()
	h.EmitStatus(events.StatusConnected)
	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestListenerIsolation(t *testing.T) {
	h := New()
	h.AddStatusListener(func(events.Status) { panic("listener bug") })
	got := events.Status("")
	h.AddStatusListener(func(s events.Status) { got = s })

	h.EmitStatus(events.StatusConnected)
	assert.Equal(t, events.StatusConnected, got)
}

func TestReentrantRegistrationDuringDispatch(t *testing.T) {
	h := New()
	late := 0
	h.AddStatusListener(func(events.Status) {
		// Registering mid-dispatch must not corrupt the iteration and the new
		// listener must not see the in-flight event.
		h.AddStatusListener(func(events.Status) { late++ })
	})

	h.EmitStatus(events.StatusPending)
	assert.Zero(t, late)

	h.EmitStatus(events.StatusConnected)
	assert.Equal(t, 1, late)
}

func TestResetDropsEverything(t *testing.T) {
	h := New()
	calls := 0
	h.AddStatusListener(func(events.Status) { calls++ })
	h.AddMessageListener(func(string, json.RawMessage) { calls++ })
	h.SetSnapshot(events.Snapshot{ID: "c1", Status: events.StatusPending})

	h.Reset()

	h.EmitStatus(events.StatusConnected)
	h.EmitMessage("status", json.RawMessage(`"connected"`))
	assert.Zero(t, calls)

	assert.Nil(t, h.Snapshot())
	fresh := 0
	h.AddSnapshotListener(func(events.Snapshot) { fresh++ })
	assert.Zero(t, fresh)
}

func TestEmitMessage(t *testing.T) {
	h := New()
	var name string
	h.AddMessageListener(func(ev string, data json.RawMessage) { name = ev })
	h.EmitMessage("welcome", nil)
	assert.Equal(t, "welcome", name)
}
