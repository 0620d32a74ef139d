// Package transport maintains the push connection that carries session
// events from the Passage backend. A Channel owns at most one physical
// websocket at a time, keyed by intent token; every inbound frame is
// classified by the events package and fanned out through the hub.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/getpassage/passage-go/pkg/events"
	"github.com/getpassage/passage-go/pkg/hub"
	"github.com/getpassage/passage-go/pkg/observability"
)

const (
	// DefaultSocketURL is the production push endpoint.
	DefaultSocketURL = "wss://ws.getpassage.dev"
	// DefaultNamespace is the event channel namespace.
	DefaultNamespace = "/ws"

	// connectTimeout bounds the wait for the server's acknowledgement (a
	// welcome frame or an initial snapshot, whichever arrives first).
	connectTimeout = 10 * time.Second

	maxReconnectAttempts = 5
)

var (
	// ErrConnectTimeout is returned when the handshake acknowledgement does
	// not arrive within the connect ceiling.
	ErrConnectTimeout = errors.New("timed out waiting for channel acknowledgement")
	// ErrSuperseded is returned when a connect-in-flight was overtaken by a
	// Disconnect or a newer Connect.
	ErrSuperseded = errors.New("connect superseded by disconnect")
)

// Frame is the wire envelope for one event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Channel is the event channel manager. All methods are safe for concurrent
// use; at most one physical connection exists at a time.
type Channel struct {
	socketURL string
	namespace string
	dialer    *websocket.Dialer
	hub       *hub.Hub
	telemetry observability.Telemetry

	// ackTimeout is the handshake ceiling; fixed at connectTimeout outside
	// of tests.
	ackTimeout time.Duration
	// reconnectBase seeds the reconnect backoff.
	reconnectBase time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	token     string
	connected bool
	// gen increments on every successful connect and every disconnect; a
	// read loop whose generation is stale must not touch shared state.
	gen int
}

// New creates a channel manager bound to h. Empty socketURL/namespace select
// the defaults; a nil telemetry collaborator is replaced with a no-op.
func New(socketURL, namespace string, h *hub.Hub, tel observability.Telemetry) *Channel {
	if socketURL == "" {
		socketURL = DefaultSocketURL
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if tel == nil {
		tel = observability.NopTelemetry{}
	}
	return &Channel{
		socketURL:     socketURL,
		namespace:     namespace,
		dialer:        websocket.DefaultDialer,
		hub:           h,
		telemetry:     tel,
		ackTimeout:    connectTimeout,
		reconnectBase: 500 * time.Millisecond,
	}
}

// Hub returns the listener hub this channel dispatches into.
func (c *Channel) Hub() *hub.Hub {
	return c.hub
}

// Token returns the token of the current connection, or "" when idle.
func (c *Channel) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Active reports whether the channel is logically connected and the
// underlying transport is still alive (the read loop clears both on a silent
// drop, guarding against a stale flag).
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil
}

// Connect establishes the channel for token. Connecting again with the same
// token while active is a no-op; a different token tears the old connection
// down before dialing, leaving hub listeners to the owner. Connect resolves
// once the server has acknowledged with a welcome or an initial snapshot
// frame; one 10-second ceiling covers the dial and the acknowledgement.
func (c *Channel) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.connected && c.conn != nil && c.token == token {
		c.mu.Unlock()
		observability.RecordConnect("reused", 0)
		c.emit("connect_reused", map[string]any{"token": token})
		return nil
	}
	// Tear down unconditionally: even when no connection is live, a dropped
	// one may have left a reconnect loop sleeping on the previous token, and
	// the generation bump here invalidates it before this dial begins.
	c.disconnectLocked("token_switch")
	startGen := c.gen
	c.mu.Unlock()

	c.emit("connect_attempt", map[string]any{"token": token})
	observability.RecordConnect("attempt", 0)
	start := time.Now()

	conn, err := c.dialAndAck(ctx, token)
	if err != nil {
		if errors.Is(err, ErrConnectTimeout) {
			observability.RecordConnect("timeout", 0)
			c.emit("connect_timeout", nil)
		} else {
			observability.RecordConnect("failure", 0)
			c.emit("connect_failure", map[string]any{"error": err.Error()})
		}
		return err
	}

	c.mu.Lock()
	if c.gen != startGen {
		// A Disconnect (or competing Connect) won the race; this resolution
		// must not install a superseded connection.
		c.mu.Unlock()
		_ = conn.Close()
		return ErrSuperseded
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.token = token
	c.connected = true
	c.mu.Unlock()

	observability.SetChannelActive(true)
	observability.RecordConnect("success", time.Since(start))
	c.emit("connect_success", map[string]any{"duration": time.Since(start)})

	go c.readLoop(conn, gen, token)
	return nil
}

// dialAndAck dials the endpoint and consumes frames until the server
// acknowledges. Frames received while waiting are dispatched normally so an
// initial snapshot is never lost.
func (c *Channel) dialAndAck(ctx context.Context, token string) (*websocket.Conn, error) {
	endpoint := c.endpoint(token)

	// One deadline spans the dial and the ack wait.
	deadline := time.Now().Add(c.ackTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial event channel: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			_ = conn.Close()
			if isTimeout(err) {
				return nil, ErrConnectTimeout
			}
			return nil, fmt.Errorf("channel handshake: %w", err)
		}
		c.dispatch(frame)
		if frame.Event == "welcome" || frame.Event == "connection" {
			_ = conn.SetReadDeadline(time.Time{})
			return conn, nil
		}
		if time.Now().After(deadline) {
			_ = conn.Close()
			return nil, ErrConnectTimeout
		}
	}
}

// Disconnect hard-resets the channel: the physical connection, every
// subscriber set, the cached snapshot, and the remembered token are all
// dropped. Calling it when no channel exists is a safe no-op.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	hadConn := c.conn != nil || c.connected
	c.disconnectLocked("client_disconnect")
	c.hub.Reset()
	c.mu.Unlock()

	if hadConn {
		c.emit("disconnect", map[string]any{"reason": "client_disconnect"})
	}
}

// disconnectLocked tears down connection state and invalidates any in-flight
// connect or reconnect via the generation bump. The hub is left untouched so
// listeners registered ahead of a redial survive. Callers hold c.mu.
func (c *Channel) disconnectLocked(reason string) {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.connected {
		observability.RecordDisconnect(reason)
	}
	c.connected = false
	c.token = ""
	c.gen++
	observability.SetChannelActive(false)
}

func (c *Channel) endpoint(token string) string {
	return strings.TrimRight(c.socketURL, "/") + c.namespace + "?intentToken=" + url.QueryEscape(token)
}

// readLoop consumes frames until the connection drops or is superseded.
func (c *Channel) readLoop(conn *websocket.Conn, gen int, token string) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			c.handleReadError(conn, gen, token, err)
			return
		}
		c.dispatch(frame)
	}
}

// handleReadError distinguishes a deliberate teardown from a transport drop,
// then hands the latter to the reconnect policy.
func (c *Channel) handleReadError(conn *websocket.Conn, gen int, token string, err error) {
	c.mu.Lock()
	if c.gen != gen {
		// Deliberately disconnected or superseded; nothing to do.
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	_ = conn.Close()
	observability.SetChannelActive(false)
	observability.RecordDisconnect("transport_error")
	c.emit("disconnect", map[string]any{"reason": err.Error()})
	c.hub.EmitMessage("disconnect", rawString(err.Error()))

	c.reconnect(gen, token)
}

// reconnect re-dials with exponential backoff. Reconnect progress is
// surfaced as generic messages; exhaustion is surfaced as the
// reconnect_failed transport error. Connect itself is never re-entered.
func (c *Channel) reconnect(gen int, token string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnectBase
	bo.MaxInterval = 10 * time.Second

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		time.Sleep(bo.NextBackOff())

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.hub.EmitMessage("reconnect_attempt", rawInt(attempt))

		conn, err := c.dialAndAck(context.Background(), token)
		if err != nil {
			log.Printf("passage: reconnect attempt %d failed: %v", attempt, err)
			fe := events.Failure(events.CodeWebSocketReconnectionError, err.Error())
			c.hub.EmitMessage(fe.Name, fe.Data)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.gen++
		newGen := c.gen
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		observability.SetChannelActive(true)
		c.hub.EmitMessage("reconnect", rawInt(attempt))
		go c.readLoop(conn, newGen, token)
		return
	}

	fe := events.Failure(events.CodeWebSocketReconnectFailed, "reconnect attempts exhausted")
	c.hub.EmitMessage(fe.Name, fe.Data)
}

// dispatch classifies one frame and fans it out: snapshots replace the hub's
// cache and imply a status, statuses go to status listeners, and every frame
// reaches the raw message listeners regardless of classification.
func (c *Channel) dispatch(frame Frame) {
	observability.RecordFrame(frame.Event)

	ev := events.Normalize(frame.Event, frame.Data)
	switch ev.Kind {
	case events.KindSnapshot:
		c.hub.SetSnapshot(*ev.Snapshot)
		c.hub.EmitStatus(ev.Status)
	case events.KindStatus:
		c.hub.EmitStatus(ev.Status)
	}

	c.hub.EmitMessage(frame.Event, frame.Data)
}

// emit reports a lifecycle event to the telemetry collaborator without ever
// letting it block or fail the calling path.
func (c *Channel) emit(event string, fields map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("passage: telemetry emit panicked: %v", r)
		}
	}()
	c.telemetry.Emit(event, fields)
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func rawInt(n int) json.RawMessage {
	b, _ := json.Marshal(n)
	return b
}
