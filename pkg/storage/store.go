// Package storage persists completed connection results on the client side.
// The log is append-only and ordered most-recent-first; the single permitted
// mutation is an in-place prompt-result update keyed by prompt name within
// one token's entry. Implementations must be safe for concurrent use.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors for storage operations.
var (
	// ErrStorageClosed is returned when operating on a closed store.
	ErrStorageClosed = errors.New("result store is closed")
)

// PromptRecord is the public shape of one completed prompt result.
type PromptRecord struct {
	Name         string          `json:"name"`
	Content      json.RawMessage `json:"content,omitempty"`
	OutputType   string          `json:"outputType,omitempty"` // text|json|boolean|number
	OutputFormat string          `json:"outputFormat,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
}

// DataResult is one durably persisted connection outcome.
type DataResult struct {
	// ID is assigned by the store on append.
	ID string `json:"id"`
	// IntentToken is the session token the result belongs to.
	IntentToken string `json:"intentToken"`
	// Data is the raw connection data payload.
	Data json.RawMessage `json:"data,omitempty"`
	// Prompts holds the completed prompt results.
	Prompts []PromptRecord `json:"prompts"`
	// Timestamp is when the entry was appended.
	Timestamp time.Time `json:"timestamp"`
}

// Store is the durable result log.
type Store interface {
	// Append prepends a new result entry (most-recent-first ordering).
	// The entry's ID and Timestamp are assigned by the store.
	Append(ctx context.Context, result *DataResult) error

	// UpsertPrompt updates the named prompt in-place within the most recent
	// entry for intentToken, appending it to that entry's prompt list if the
	// name is new. If no entry for the token exists yet, a fresh entry is
	// created to hold it.
	UpsertPrompt(ctx context.Context, intentToken string, prompt PromptRecord) error

	// List returns all entries, most recent first.
	List(ctx context.Context) ([]DataResult, error)

	// Close releases resources held by the store.
	Close() error
}

// upsertPromptInPlace applies the shared update rule to an entry list held in
// memory: find the most recent entry for the token, then replace-or-append the
// prompt by name. Returns the (possibly grown) list and whether an existing
// entry was modified rather than created.
func upsertPromptInPlace(entries []DataResult, intentToken string, prompt PromptRecord, newID func() string) []DataResult {
	for i := range entries {
		if entries[i].IntentToken != intentToken {
			continue
		}
		for j := range entries[i].Prompts {
			if entries[i].Prompts[j].Name == prompt.Name {
				entries[i].Prompts[j] = prompt
				return entries
			}
		}
		entries[i].Prompts = append(entries[i].Prompts, prompt)
		return entries
	}

	// No entry for this token yet: create one holding just the prompt.
	fresh := DataResult{
		ID:          newID(),
		IntentToken: intentToken,
		Prompts:     []PromptRecord{prompt},
		Timestamp:   time.Now().UTC(),
	}
	return append([]DataResult{fresh}, entries...)
}
