package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// resultsFile is the single well-known key holding the serialized result log.
const resultsFile = "connections.json"

// FileStore persists the result log as one JSON file under baseDir.
// Storage layout:
//
//	~/.passage/
//	  └── connections.json   # full result log, most-recent-first
type FileStore struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// NewFileStore creates a file-backed store. If baseDir is empty, uses
// ~/.passage.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".passage")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &FileStore{path: filepath.Join(baseDir, resultsFile)}, nil
}

// Append prepends a new result entry and rewrites the log file.
func (s *FileStore) Append(ctx context.Context, result *DataResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}

	entries, err := s.load()
	if err != nil {
		return err
	}

	result.ID = uuid.New().String()
	result.Timestamp = time.Now().UTC()
	return s.save(append([]DataResult{*result}, entries...))
}

// UpsertPrompt updates the named prompt within intentToken's entry in place.
func (s *FileStore) UpsertPrompt(ctx context.Context, intentToken string, prompt PromptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}

	entries, err := s.load()
	if err != nil {
		return err
	}

	entries = upsertPromptInPlace(entries, intentToken, prompt, func() string {
		return uuid.New().String()
	})
	return s.save(entries)
}

// List returns all entries, most recent first.
func (s *FileStore) List(ctx context.Context) ([]DataResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStorageClosed
	}
	return s.load()
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) load() ([]DataResult, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read result log: %w", err)
	}

	var entries []DataResult
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse result log: %w", err)
	}
	return entries, nil
}

func (s *FileStore) save(entries []DataResult) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result log: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write result log: %w", err)
	}
	return nil
}
