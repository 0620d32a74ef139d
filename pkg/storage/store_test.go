package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest runs the shared contract against any backend.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("append is most-recent-first, never merged", func(t *testing.T) {
		err := s.Append(ctx, &DataResult{IntentToken: "tokA", Data: json.RawMessage(`[{"a":1}]`)})
		require.NoError(t, err)
		err = s.Append(ctx, &DataResult{IntentToken: "tokB", Data: json.RawMessage(`[{"b":2}]`)})
		require.NoError(t, err)

		entries, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "tokB", entries[0].IntentToken)
		assert.Equal(t, "tokA", entries[1].IntentToken)
		assert.NotEmpty(t, entries[0].ID)
		assert.False(t, entries[0].Timestamp.IsZero())
	})

	t.Run("prompt updates in place by name", func(t *testing.T) {
		err := s.UpsertPrompt(ctx, "tokA", PromptRecord{
			Name: "email", Content: json.RawMessage(`"x@y.com"`), OutputType: "text",
		})
		require.NoError(t, err)
		err = s.UpsertPrompt(ctx, "tokA", PromptRecord{
			Name: "email", Content: json.RawMessage(`"z@y.com"`), OutputType: "text",
		})
		require.NoError(t, err)

		entries, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2, "in-place update must not append a duplicate entry")

		var tokA *DataResult
		for i := range entries {
			if entries[i].IntentToken == "tokA" {
				tokA = &entries[i]
			}
		}
		require.NotNil(t, tokA)
		require.Len(t, tokA.Prompts, 1)
		assert.JSONEq(t, `"z@y.com"`, string(tokA.Prompts[0].Content))
	})

	t.Run("distinct prompt names accumulate", func(t *testing.T) {
		err := s.UpsertPrompt(ctx, "tokA", PromptRecord{Name: "phone", Content: json.RawMessage(`"555"`)})
		require.NoError(t, err)

		entries, err := s.List(ctx)
		require.NoError(t, err)
		for _, e := range entries {
			if e.IntentToken == "tokA" {
				assert.Len(t, e.Prompts, 2)
			}
		}
	})

	t.Run("prompt for unknown token creates an entry", func(t *testing.T) {
		err := s.UpsertPrompt(ctx, "tokC", PromptRecord{Name: "email", Content: json.RawMessage(`"c@y.com"`)})
		require.NoError(t, err)

		entries, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "tokC", entries[0].IntentToken)
	})

	t.Run("closed store rejects operations", func(t *testing.T) {
		require.NoError(t, s.Close())
		assert.ErrorIs(t, s.Append(ctx, &DataResult{IntentToken: "x"}), ErrStorageClosed)
		_, err := s.List(ctx)
		assert.ErrorIs(t, err, ErrStorageClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runStoreContract(t, s)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Append(ctx, &DataResult{IntentToken: "tokA"}))
	require.NoError(t, s1.Close())

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	entries, err := s2.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tokA", entries[0].IntentToken)
}
