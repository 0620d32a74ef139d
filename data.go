package passage

import (
	"context"
	"log"

	"github.com/getpassage/passage-go/pkg/api"
	"github.com/getpassage/passage-go/pkg/storage"
)

// GetData returns the connection result log, most recent first. It never
// fails: when the store is empty it falls back to the in-memory snapshot of
// the live session, and with neither it returns a single empty placeholder
// entry so callers can index [0] unconditionally.
func (c *Client) GetData(ctx context.Context) []storage.DataResult {
	entries, err := c.store.List(ctx)
	if err != nil {
		log.Printf("passage: list stored results: %v", err)
	}
	if len(entries) > 0 {
		return entries
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if snap := c.hub.Snapshot(); snap != nil {
		return []storage.DataResult{{
			IntentToken: token,
			Data:        snap.Data,
			Prompts:     completedRecords(snap.PromptResults),
		}}
	}

	return []storage.DataResult{{
		IntentToken: token,
		Prompts:     []storage.PromptRecord{},
	}}
}

// FetchResources pulls connection records for every requested resource the
// current intent token grants. Resources the token does not permit are
// silently skipped.
func (c *Client) FetchResources(ctx context.Context, resources []string) ([]api.Resource, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		return nil, ErrNoIntentToken
	}
	return c.api.FetchPermitted(ctx, token, resources)
}
