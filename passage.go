// Package passage is the Go client SDK for Passage identity and data
// connections. A Client drives the full lifecycle of a connection
// session: it obtains an intent token from the Passage REST API, opens
// an event channel to the realtime gateway, normalizes the frames that
// arrive on it, and reports progress to the host application through a
// small set of callbacks.
//
// Typical use:
//
//	client := passage.New(passage.Config{PublishableKey: key})
//	err := client.Initialize(ctx, passage.InitializeOptions{
//		IntegrationID: "github",
//		Handlers: passage.Handlers{
//			OnDataComplete: func(res storage.DataResult) { ... },
//			OnError:        func(e passage.Error) { ... },
//		},
//	})
//	...
//	err = client.Open(ctx, passage.OpenOptions{})
package passage

import (
	"net/http"

	"github.com/getpassage/passage-go/pkg/api"
	"github.com/getpassage/passage-go/pkg/hub"
	"github.com/getpassage/passage-go/pkg/observability"
	"github.com/getpassage/passage-go/pkg/storage"
	"github.com/getpassage/passage-go/pkg/transport"
)

// Config configures a Client. The zero value is usable for tests that
// inject their own endpoints; production callers set PublishableKey at
// minimum.
type Config struct {
	// PublishableKey authenticates intent token issuance. It may be
	// overridden per call via InitializeOptions.
	PublishableKey string

	// APIURL is the REST base URL. Defaults to api.DefaultAPIURL.
	APIURL string

	// SocketURL is the realtime gateway URL. Defaults to
	// transport.DefaultSocketURL.
	SocketURL string

	// Namespace is the websocket path. Defaults to
	// transport.DefaultNamespace.
	Namespace string

	// Store persists connection results. Defaults to an in-memory
	// store that lives as long as the Client.
	Store storage.Store

	// Telemetry receives lifecycle events. Defaults to
	// observability.NopTelemetry.
	Telemetry observability.Telemetry

	// HTTPClient is used for REST calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// New builds a Client from cfg. The returned Client is safe for
// concurrent use.
func New(cfg Config) *Client {
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = observability.NopTelemetry{}
	}
	h := hub.New()
	return &Client{
		cfg:     cfg,
		api:     api.New(cfg.APIURL, cfg.PublishableKey, cfg.HTTPClient),
		hub:     h,
		channel: transport.New(cfg.SocketURL, cfg.Namespace, h, cfg.Telemetry),
		store:   cfg.Store,
	}
}
