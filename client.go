package passage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/getpassage/passage-go/pkg/api"
	"github.com/getpassage/passage-go/pkg/events"
	"github.com/getpassage/passage-go/pkg/hub"
	"github.com/getpassage/passage-go/pkg/intenttoken"
	"github.com/getpassage/passage-go/pkg/observability"
	"github.com/getpassage/passage-go/pkg/storage"
	"github.com/getpassage/passage-go/pkg/transport"
)

// Stable error codes surfaced through OnError.
const (
	CodeInitializeError    = "INITIALIZE_ERROR"
	CodeOpenError          = "OPEN_ERROR"
	CodeNoIntentToken      = "NO_INTENT_TOKEN"
	CodeConnectionError    = "CONNECTION_ERROR"
	CodeConnectionRejected = "CONNECTION_REJECTED"
	CodeDoneFailure        = "DONE_FAILURE"
)

// ExitManualClose is the OnExit reason reported when the host closes the
// presentation surface before the session ever reached connected.
const ExitManualClose = "manual_close"

// ErrNoIntentToken is returned by Open when no token is available.
var ErrNoIntentToken = errors.New("No intent token available")

// Error is a failure surfaced through the OnError callback.
type Error struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e Error) Error() string { return e.Code + ": " + e.Message }

// PromptResult is the host-facing shape of one completed prompt.
type PromptResult = storage.PromptRecord

// ConnectionResult summarizes a successfully completed connection.
type ConnectionResult struct {
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data,omitempty"`
	Prompts []PromptResult  `json:"prompts"`
}

// Handlers are the host application's callbacks. Any field may be nil; a
// nil handler for an event that fires is a logged no-op. Callbacks are
// invoked from the channel's read goroutine and must not block.
type Handlers struct {
	// OnConnectionComplete fires once when the session ends successfully.
	OnConnectionComplete func(ConnectionResult)
	// OnDataComplete fires once when the session's data is available.
	OnDataComplete func(storage.DataResult)
	// OnPromptComplete fires for each prompt that completes, possibly
	// repeatedly for the same name as results are refined.
	OnPromptComplete func(PromptResult)
	// OnError fires for session and transport failures.
	OnError func(Error)
	// OnExit fires when the host closes the surface before the session
	// reached connected.
	OnExit func(reason string)
}

// Client is the session controller. It owns one event channel, one result
// store, and the host's callback registration, and translates normalized
// channel events into callback invocations and persisted results.
type Client struct {
	cfg     Config
	api     *api.Client
	hub     *hub.Hub
	channel *transport.Channel
	store   storage.Store

	mu         sync.Mutex
	handlers   Handlers
	token      string
	sessionID  string
	status     events.Status
	open       bool
	registered bool

	// Per-session one-shot guards.
	reachedConnected bool
	dataFired        bool
	terminalFired    bool
}

// InitializeOptions configure token issuance.
type InitializeOptions struct {
	// PublishableKey overrides the Config key for this call.
	PublishableKey string
	IntegrationID  string
	Prompts        []api.PromptSpec
	Products       []string
	SessionArgs    json.RawMessage
	Record         bool
	Resources      []string
	// Handlers replace any previously registered callbacks.
	Handlers Handlers
}

// OpenOptions configure Open.
type OpenOptions struct {
	// IntentToken overrides the token obtained by Initialize. Supplying a
	// token different from the current one tears down the existing channel
	// state before connecting.
	IntentToken string
	// Handlers, if any field is set, replace the registered callbacks.
	Handlers Handlers
}

// Initialize requests an intent token and registers the host's callbacks.
// Failures are reported through OnError with code INITIALIZE_ERROR and also
// returned.
func (c *Client) Initialize(ctx context.Context, opts InitializeOptions) error {
	ctx, span := observability.StartSpan(ctx, "passage.Initialize")
	defer span.End()

	c.mu.Lock()
	c.handlers = opts.Handlers
	c.mu.Unlock()

	cli := c.api
	if opts.PublishableKey != "" {
		cli = api.New(c.cfg.APIURL, opts.PublishableKey, c.cfg.HTTPClient)
	}

	token, err := cli.CreateIntentToken(ctx, api.IntentTokenRequest{
		IntegrationID: opts.IntegrationID,
		Prompts:       opts.Prompts,
		Products:      opts.Products,
		SessionArgs:   opts.SessionArgs,
		Record:        opts.Record,
		Resources:     opts.Resources,
	})
	if err != nil {
		span.RecordError(err)
		c.fireError(Error{Code: CodeInitializeError, Message: err.Error()})
		return err
	}

	c.mu.Lock()
	c.adoptTokenLocked(token)
	c.mu.Unlock()
	return nil
}

// Open connects the event channel for the current (or supplied) intent token
// and marks the presentation surface open. Calling Open again with the same
// token while the channel is live reuses the connection; a different token
// replaces it. With no token available it fails immediately through OnError.
func (c *Client) Open(ctx context.Context, opts OpenOptions) error {
	ctx, span := observability.StartSpan(ctx, "passage.Open")
	defer span.End()

	c.mu.Lock()
	if hasHandlers(opts.Handlers) {
		c.handlers = opts.Handlers
	}
	token := c.token
	if opts.IntentToken != "" {
		token = opts.IntentToken
	}
	if token == "" {
		c.mu.Unlock()
		c.fireError(Error{Code: CodeNoIntentToken, Message: ErrNoIntentToken.Error()})
		return ErrNoIntentToken
	}
	if token != c.token {
		c.adoptTokenLocked(token)
	}
	reuse := c.channel.Active() && c.channel.Token() == token
	tokenSwitch := !reuse && c.channel.Active()
	needSub := !c.registered || tokenSwitch
	c.registered = true
	c.mu.Unlock()

	if tokenSwitch {
		// A new token starts with a fresh hub so listeners from the previous
		// session cannot observe the next one.
		c.hub.Reset()
	}
	// Registration precedes the dial so frames arriving during the handshake
	// reach the controller, and happens outside c.mu: the hub replays a
	// cached snapshot synchronously on subscribe, and that replay re-enters
	// the controller.
	if needSub {
		c.subscribe()
	}

	if !reuse {
		if err := c.channel.Connect(ctx, token); err != nil {
			// The token survives a failed open so the host can retry.
			span.RecordError(err)
			c.fireError(Error{Code: CodeOpenError, Message: err.Error()})
			return err
		}
	}

	c.mu.Lock()
	c.open = true
	if c.status == "" {
		c.status = events.StatusPending
	}
	c.mu.Unlock()

	observability.RecordCallback("open")
	return nil
}

// Close closes the presentation surface without touching the channel. If the
// session never reached connected, OnExit fires with reason "manual_close".
func (c *Client) Close() {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	early := !c.reachedConnected
	onExit := c.handlers.OnExit
	c.mu.Unlock()

	if wasOpen && early && onExit != nil {
		observability.RecordCallback("exit")
		onExit(ExitManualClose)
	}
}

// Disconnect tears down the channel, drops all listeners and registered
// handlers, and forgets the current token. It is safe to call at any time.
func (c *Client) Disconnect() {
	c.channel.Disconnect()

	c.mu.Lock()
	c.handlers = Handlers{}
	c.token = ""
	c.sessionID = ""
	c.status = ""
	c.open = false
	c.registered = false
	c.reachedConnected = false
	c.dataFired = false
	c.terminalFired = false
	c.mu.Unlock()
}

// AddMessageListener registers fn for every raw frame on the channel and
// returns its unsubscribe. Listeners do not survive Disconnect.
func (c *Client) AddMessageListener(fn func(event string, data json.RawMessage)) func() {
	return c.hub.AddMessageListener(fn)
}

// AddStatusListener registers fn for lifecycle status transitions and returns
// its unsubscribe. Listeners do not survive Disconnect.
func (c *Client) AddStatusListener(fn func(events.Status)) func() {
	return c.hub.AddStatusListener(fn)
}

// Status reports the controller's view of the connection lifecycle.
func (c *Client) Status() events.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IntentToken returns the current session token, if any.
func (c *Client) IntentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SessionID returns the session identifier decoded from the intent token or
// learned from a connection snapshot.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// adoptTokenLocked installs a new session token and resets the per-session
// one-shot guards. Caller holds c.mu.
func (c *Client) adoptTokenLocked(token string) {
	c.token = token
	c.status = ""
	c.reachedConnected = false
	c.dataFired = false
	c.terminalFired = false
	if claims, err := intenttoken.Decode(token); err == nil {
		c.sessionID = claims.SessionID
	} else {
		c.sessionID = ""
	}
}

// subscribe attaches the controller's listeners to the hub, ahead of the
// channel dial so handshake-era frames are observed. The snapshot listener is
// replayed synchronously when a snapshot is already cached; the hub's Reset
// on disconnect drops the registrations again.
func (c *Client) subscribe() {
	c.hub.AddSnapshotListener(c.onSnapshot)
	c.hub.AddStatusListener(c.onStatus)
	c.hub.AddMessageListener(c.onMessage)
}

func (c *Client) onStatus(st events.Status) {
	c.mu.Lock()
	c.status = st
	if st == events.StatusConnected {
		c.reachedConnected = true
	}
	c.mu.Unlock()

	if st.Terminal() {
		c.fireTerminalStatus(st, nil)
	}
}

func (c *Client) onSnapshot(snap events.Snapshot) {
	c.mu.Lock()
	if snap.ID != "" {
		c.sessionID = snap.ID
	}
	c.status = snap.Status
	if snap.Status == events.StatusConnected {
		c.reachedConnected = true
	}
	c.mu.Unlock()

	if snap.Status == events.StatusDataAvailable {
		c.completeData(snap.Data, completedRecords(snap.PromptResults))
	}
	if snap.Status.Terminal() {
		c.fireTerminalStatus(snap.Status, nil)
	}
}

// onMessage re-normalizes every raw frame so outcome frames that are not
// snapshots or bare statuses (prompts, done, legacy completes, transport
// errors) reach the controller.
func (c *Client) onMessage(name string, data json.RawMessage) {
	ev := events.Normalize(name, data)
	switch ev.Kind {
	case events.KindPrompt, events.KindPromptComplete:
		for _, p := range ev.Prompts {
			c.completePrompt(p)
		}
	case events.KindDataComplete:
		c.completeData(ev.Data, nil)
	case events.KindTerminal:
		c.finishSession(*ev.Terminal)
	case events.KindTransportError:
		c.fireError(Error{Code: ev.Transport.Code, Message: ev.Transport.Message})
	}
}

// completePrompt persists one completed prompt in place and notifies the host.
func (c *Client) completePrompt(p events.PromptSnapshot) {
	rec := promptRecord(p)

	c.mu.Lock()
	token := c.token
	onPrompt := c.handlers.OnPromptComplete
	c.mu.Unlock()

	if err := c.store.UpsertPrompt(context.Background(), token, rec); err != nil {
		log.Printf("passage: persist prompt %q: %v", rec.Name, err)
	}

	observability.RecordCallback("prompt_complete")
	if onPrompt == nil {
		log.Printf("passage: prompt %q completed with no OnPromptComplete handler", rec.Name)
		return
	}
	onPrompt(rec)
}

// completeData persists the connection data outcome and fires OnDataComplete,
// at most once per session token.
func (c *Client) completeData(data json.RawMessage, prompts []PromptResult) {
	c.mu.Lock()
	if c.dataFired {
		c.mu.Unlock()
		return
	}
	c.dataFired = true
	token := c.token
	onData := c.handlers.OnDataComplete
	c.mu.Unlock()

	if prompts == nil {
		prompts = []PromptResult{}
	}
	result := storage.DataResult{
		IntentToken: token,
		Data:        data,
		Prompts:     prompts,
	}
	if err := c.store.Append(context.Background(), &result); err != nil {
		log.Printf("passage: persist connection result: %v", err)
	}

	observability.RecordCallback("data_complete")
	if onData == nil {
		log.Printf("passage: data completed with no OnDataComplete handler")
		return
	}
	onData(result)
}

// finishSession handles the out-of-band end-of-session signal. On success the
// connection-complete outcome is synthesized from the last known snapshot,
// overridable by the frame's own data, and OnConnectionComplete fires before
// OnDataComplete. On failure OnError fires with DONE_FAILURE.
func (c *Client) finishSession(term events.Terminal) {
	if !term.Success {
		c.fireTerminalStatus(events.StatusError, &Error{
			Code:    CodeDoneFailure,
			Message: "connection did not complete successfully",
			Data:    term.Data,
		})
		return
	}

	c.mu.Lock()
	if c.terminalFired {
		c.mu.Unlock()
		return
	}
	c.terminalFired = true
	onComplete := c.handlers.OnConnectionComplete
	sessionID := c.sessionID
	c.mu.Unlock()

	snap := c.hub.Snapshot()
	res := ConnectionResult{ID: sessionID, Prompts: []PromptResult{}}
	if snap != nil {
		if snap.ID != "" {
			res.ID = snap.ID
		}
		res.Data = snap.Data
		res.Prompts = completedRecords(snap.PromptResults)
	}
	if len(term.Data) > 0 {
		res.Data = term.Data
		var hint struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(term.Data, &hint) == nil && hint.ID != "" {
			res.ID = hint.ID
		}
	}

	observability.RecordCallback("connection_complete")
	if onComplete != nil {
		onComplete(res)
	} else {
		log.Printf("passage: connection completed with no OnConnectionComplete handler")
	}

	c.completeData(res.Data, res.Prompts)
}

// fireTerminalStatus reports a terminal failure exactly once per session.
func (c *Client) fireTerminalStatus(st events.Status, override *Error) {
	c.mu.Lock()
	if c.terminalFired {
		c.mu.Unlock()
		return
	}
	c.terminalFired = true
	c.status = st
	c.mu.Unlock()

	if override != nil {
		c.fireError(*override)
		return
	}
	code := CodeConnectionError
	msg := "connection ended with an error"
	if st == events.StatusRejected {
		code = CodeConnectionRejected
		msg = "connection was rejected"
	}
	c.fireError(Error{Code: code, Message: msg})
}

func (c *Client) fireError(e Error) {
	c.mu.Lock()
	onError := c.handlers.OnError
	c.mu.Unlock()

	observability.RecordCallback("error")
	if onError == nil {
		log.Printf("passage: unhandled error %s: %s", e.Code, e.Message)
		return
	}
	onError(e)
}

// promptRecord converts a wire prompt result to the host-facing record. A
// structured result contributes content and output metadata; anything else is
// carried whole as the content.
func promptRecord(p events.PromptSnapshot) PromptResult {
	rec := PromptResult{Name: p.Name}
	var body struct {
		Content      json.RawMessage `json:"content"`
		OutputType   string          `json:"outputType"`
		OutputFormat string          `json:"outputFormat"`
		Response     json.RawMessage `json:"response"`
	}
	if len(p.Result) > 0 && json.Unmarshal(p.Result, &body) == nil && body.Content != nil {
		rec.Content = body.Content
		rec.OutputType = body.OutputType
		rec.OutputFormat = body.OutputFormat
		rec.Response = body.Response
		return rec
	}
	rec.Content = p.Result
	return rec
}

// completedRecords keeps only completed prompts, in wire order.
func completedRecords(prompts []events.PromptSnapshot) []PromptResult {
	out := make([]PromptResult, 0, len(prompts))
	for _, p := range prompts {
		if p.Status == events.PromptStatusCompleted {
			out = append(out, promptRecord(p))
		}
	}
	return out
}

func hasHandlers(h Handlers) bool {
	return h.OnConnectionComplete != nil || h.OnDataComplete != nil ||
		h.OnPromptComplete != nil || h.OnError != nil || h.OnExit != nil
}
