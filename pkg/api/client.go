// Package api wraps the Passage REST backend: intent token issuance and
// connection resource fetches. These calls carry no session state of their
// own; the interesting state machine lives in the transport and controller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultAPIURL is the production REST endpoint.
const DefaultAPIURL = "https://api.getpassage.dev"

const requestTimeout = 30 * time.Second

// ErrNoPublishableKey is returned when token issuance is attempted without a key.
var ErrNoPublishableKey = errors.New("publishable key is required")

// Client calls the Passage REST backend.
type Client struct {
	baseURL        string
	publishableKey string
	httpClient     *http.Client
}

// New creates a REST client. An empty baseURL selects DefaultAPIURL and a nil
// httpClient selects one with a bounded timeout.
func New(baseURL, publishableKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		publishableKey: publishableKey,
		httpClient:     httpClient,
	}
}

// IntentTokenRequest is the issuance call body. All fields are optional.
type IntentTokenRequest struct {
	IntegrationID string          `json:"integrationId,omitempty"`
	Prompts       []PromptSpec    `json:"prompts,omitempty"`
	Products      []string        `json:"products,omitempty"`
	SessionArgs   json.RawMessage `json:"sessionArgs,omitempty"`
	Record        bool            `json:"record,omitempty"`
	Resources     []string        `json:"resources,omitempty"`
}

// PromptSpec configures one prompt the remote session should run.
type PromptSpec struct {
	Name         string `json:"name"`
	Prompt       string `json:"prompt,omitempty"`
	OutputType   string `json:"outputType,omitempty"` // text|json|boolean|number
	OutputFormat string `json:"outputFormat,omitempty"`
}

// CreateIntentToken requests a new intent token from the backend.
// Validation rejections come back as a single human-readable message with the
// individual constraint messages joined by "; ".
func (c *Client) CreateIntentToken(ctx context.Context, req IntentTokenRequest) (string, error) {
	if c.publishableKey == "" {
		return "", ErrNoPublishableKey
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal intent token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/intent-token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build intent token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Publishable "+c.publishableKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("intent token request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read intent token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("intent token request failed: %s", unwrapAPIError(resp.StatusCode, data))
	}

	var out struct {
		IntentToken string `json:"intentToken"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse intent token response: %w", err)
	}
	if out.IntentToken == "" {
		return "", errors.New("intent token response missing intentToken")
	}
	return out.IntentToken, nil
}

// unwrapAPIError flattens a backend error body into one message. Validation
// failures (errorCode VALIDATION_001) carry nested constraint maps; every
// constraint message is collected and joined with "; ".
func unwrapAPIError(status int, data []byte) string {
	var body struct {
		ErrorCode string          `json:"errorCode"`
		Message   string          `json:"message"`
		Details   json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Sprintf("status %d", status)
	}

	if body.ErrorCode == "VALIDATION_001" && len(body.Details) > 0 {
		if msgs := collectConstraints(body.Details); len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	if body.Message != "" {
		return body.Message
	}
	return fmt.Sprintf("status %d", status)
}

// collectConstraints walks an arbitrary details payload and gathers the
// string values of every "constraints" map, in encounter order.
func collectConstraints(raw json.RawMessage) []string {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}

	var msgs []string
	var walk func(any)
	walk = func(n any) {
		switch v := n.(type) {
		case map[string]any:
			if cons, ok := v["constraints"].(map[string]any); ok {
				for _, key := range sortedKeys(cons) {
					if s, ok := cons[key].(string); ok {
						msgs = append(msgs, s)
					}
				}
			}
			for _, key := range sortedKeys(v) {
				if key != "constraints" {
					walk(v[key])
				}
			}
		case []any:
			for _, item := range v {
				walk(item)
			}
		}
	}
	walk(node)
	return msgs
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
