// Package hub multiplexes one event channel to independent subscriber sets.
// It owns the cached connection snapshot, so a component that subscribes after
// data has already arrived still gets caught up.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/getpassage/passage-go/pkg/events"
)

// StatusListener receives lifecycle status transitions.
type StatusListener func(events.Status)

// SnapshotListener receives full connection snapshots.
type SnapshotListener func(events.Snapshot)

// MessageListener receives every raw frame regardless of classification.
type MessageListener func(event string, data json.RawMessage)

type entry[F any] struct {
	id int
	fn F
}

// Hub fans events out to status, snapshot, and raw message listeners.
// Fan-out is in registration order; a listener that panics is isolated and
// logged without aborting dispatch to the rest of its set. All methods are
// safe for concurrent use.
type Hub struct {
	mu       sync.Mutex
	nextID   int
	status   []entry[StatusListener]
	snapshot []entry[SnapshotListener]
	message  []entry[MessageListener]
	current  *events.Snapshot
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{}
}

// AddStatusListener registers fn and returns its unsubscribe function.
func (h *Hub) AddStatusListener(fn StatusListener) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.status = append(h.status, entry[StatusListener]{id, fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.status = remove(h.status, id)
	}
}

// AddSnapshotListener registers fn and returns its unsubscribe function.
// If a snapshot is already cached it is replayed to fn synchronously before
// AddSnapshotListener returns.
func (h *Hub) AddSnapshotListener(fn SnapshotListener) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.snapshot = append(h.snapshot, entry[SnapshotListener]{id, fn})
	replay := h.current
	h.mu.Unlock()

	if replay != nil {
		invoke(func() { fn(*replay) })
	}

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.snapshot = remove(h.snapshot, id)
	}
}

// AddMessageListener registers fn and returns its unsubscribe function.
func (h *Hub) AddMessageListener(fn MessageListener) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.message = append(h.message, entry[MessageListener]{id, fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.message = remove(h.message, id)
	}
}

// EmitStatus dispatches a status to every status listener. It is also the
// manual injection path for statuses derived outside the channel's own
// classification.
func (h *Hub) EmitStatus(st events.Status) {
	for _, e := range snapshotOf(h, &h.status) {
		fn := e.fn
		invoke(func() { fn(st) })
	}
}

// SetSnapshot replaces the cached snapshot (last write wins, no merging) and
// dispatches it to every snapshot listener.
func (h *Hub) SetSnapshot(snap events.Snapshot) {
	h.mu.Lock()
	h.current = &snap
	listeners := append([]entry[SnapshotListener](nil), h.snapshot...)
	h.mu.Unlock()

	for _, e := range listeners {
		fn := e.fn
		invoke(func() { fn(snap) })
	}
}

// EmitMessage dispatches a raw frame to every message listener.
func (h *Hub) EmitMessage(event string, data json.RawMessage) {
	for _, e := range snapshotOf(h, &h.message) {
		fn := e.fn
		invoke(func() { fn(event, data) })
	}
}

// Snapshot returns the cached snapshot, or nil if none has arrived.
func (h *Hub) Snapshot() *events.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Reset drops every listener set and the cached snapshot. After Reset, late
// dispatches from a superseded connection find nothing to call.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = nil
	h.snapshot = nil
	h.message = nil
	h.current = nil
}

// snapshotOf copies a listener set under the lock so dispatch iterates over a
// stable view even if a callback re-enters the hub.
func snapshotOf[F any](h *Hub, set *[]entry[F]) []entry[F] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]entry[F](nil), *set...)
}

func remove[F any](set []entry[F], id int) []entry[F] {
	for i, e := range set {
		if e.id == id {
			return append(set[:i:i], set[i+1:]...)
		}
	}
	return set
}

// invoke runs one listener, converting a panic into a log line so a throwing
// listener cannot starve the rest of its set.
func invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("passage: listener panicked: %v", r)
		}
	}()
	fn()
}
