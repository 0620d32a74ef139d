package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the result log in a Redis list, most-recent-first via
// LPUSH. It suits host applications that already run session state through
// Redis rather than browser-local storage.
type RedisStore struct {
	client *redis.Client
	key    string
	mu     sync.Mutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Key is the list key holding the result log (default: "passage:results").
	Key string
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Key), nil
}

// NewRedisStoreFromClient wraps an existing client. Useful for testing with
// miniredis.
func NewRedisStoreFromClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "passage:results"
	}
	return &RedisStore{client: client, key: key}
}

// Append prepends a new result entry.
func (s *RedisStore) Append(ctx context.Context, result *DataResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}

	result.ID = uuid.New().String()
	result.Timestamp = time.Now().UTC()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// UpsertPrompt updates the named prompt within intentToken's entry in place.
func (s *RedisStore) UpsertPrompt(ctx context.Context, intentToken string, prompt PromptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}

	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("load result log: %w", err)
	}

	for i, item := range raw {
		var entry DataResult
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return fmt.Errorf("parse result entry: %w", err)
		}
		if entry.IntentToken != intentToken {
			continue
		}

		replaced := false
		for j := range entry.Prompts {
			if entry.Prompts[j].Name == prompt.Name {
				entry.Prompts[j] = prompt
				replaced = true
				break
			}
		}
		if !replaced {
			entry.Prompts = append(entry.Prompts, prompt)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal result entry: %w", err)
		}
		if err := s.client.LSet(ctx, s.key, int64(i), data).Err(); err != nil {
			return fmt.Errorf("update result entry: %w", err)
		}
		return nil
	}

	// No entry for this token yet.
	fresh := DataResult{
		ID:          uuid.New().String(),
		IntentToken: intentToken,
		Prompts:     []PromptRecord{prompt},
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("marshal result entry: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("append result entry: %w", err)
	}
	return nil
}

// List returns all entries, most recent first.
func (s *RedisStore) List(ctx context.Context) ([]DataResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStorageClosed
	}

	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load result log: %w", err)
	}

	entries := make([]DataResult, 0, len(raw))
	for _, item := range raw {
		var entry DataResult
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("parse result entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
