package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntentToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/intent-token", r.URL.Path)
		assert.Equal(t, "Publishable pk_test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "audible", body["integrationId"])

		_ = json.NewEncoder(w).Encode(map[string]string{"intentToken": "tok1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "pk_test", nil)
	tok, err := c.CreateIntentToken(context.Background(), IntentTokenRequest{IntegrationID: "audible"})
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
}

func TestCreateIntentToken_NoKey(t *testing.T) {
	c := New("http://unused", "", nil)
	_, err := c.CreateIntentToken(context.Background(), IntentTokenRequest{})
	assert.ErrorIs(t, err, ErrNoPublishableKey)
}

func TestCreateIntentToken_ValidationErrorsJoined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{
			"errorCode": "VALIDATION_001",
			"details": [
				{"property": "integrationId", "constraints": {"isString": "integrationId must be a string"}},
				{"property": "prompts", "constraints": {"isArray": "prompts must be an array"}}
			]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "pk_test", nil)
	_, err := c.CreateIntentToken(context.Background(), IntentTokenRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrationId must be a string; prompts must be an array")
}

func TestCreateIntentToken_PlainMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid publishable key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "pk_bad", nil)
	_, err := c.CreateIntentToken(context.Background(), IntentTokenRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid publishable key")
}

func TestResourcePath(t *testing.T) {
	cases := map[string]string{
		"trip-read":        "trips",
		"trip-write":       "trips",
		"accountInfo-read": "account-info",
		"purchase-read":    "purchases",
		"order-write":      "orders",
	}
	for in, want := range cases {
		assert.Equal(t, want, ResourcePath(in), in)
	}
}

func testToken(t *testing.T, payload map[string]any) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header, _ := json.Marshal(map[string]string{"alg": "none"})
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return enc.EncodeToString(header) + "." + enc.EncodeToString(body) + ".x"
}

func TestFetchPermitted(t *testing.T) {
	tok := testToken(t, map[string]any{
		"sessionId": "sess-1",
		"resources": []string{"trip-read", "accountInfo-read"},
	})

	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, tok, r.Header.Get("x-intent-token"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()
	// Hand the client a token string for the mock backend; only the payload
	// matters since the client never verifies.
	c := New(srv.URL, "pk_test", nil)
	got, err := c.FetchPermitted(context.Background(), tok, []string{"trip-read", "accountInfo-read", "purchase-read"})
	require.NoError(t, err)

	// purchase-read is not granted by the token and is silently dropped.
	assert.Len(t, got, 2)
	assert.ElementsMatch(t, paths, []string{
		"/connections/sess-1/trips",
		"/connections/sess-1/account-info",
	})
}
