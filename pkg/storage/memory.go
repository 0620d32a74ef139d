package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the result log in process memory. It is the default
// backend and the one used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []DataResult
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append prepends a new result entry.
func (s *MemoryStore) Append(ctx context.Context, result *DataResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}

	result.ID = uuid.New().String()
	result.Timestamp = time.Now().UTC()
	s.entries = append([]DataResult{*result}, s.entries...)
	return nil
}

// UpsertPrompt updates the named prompt within intentToken's entry in place.
func (s *MemoryStore) UpsertPrompt(ctx context.Context, intentToken string, prompt PromptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}

	s.entries = upsertPromptInPlace(s.entries, intentToken, prompt, func() string {
		return uuid.New().String()
	})
	return nil
}

// List returns a copy of all entries, most recent first.
func (s *MemoryStore) List(ctx context.Context) ([]DataResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageClosed
	}

	out := make([]DataResult, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
