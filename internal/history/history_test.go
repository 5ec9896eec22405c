package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/pkg/types"
)

func TestStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemoryDatabase()
	store := NewStore(db, "s1")

	require.NoError(t, store.Append(ctx, &types.Message{Role: "user", Content: "hello"}))
	require.NoError(t, store.Append(ctx, &types.Message{Role: "assistant", Content: "hi"}))

	messages, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "hi", messages[1].Content)
	assert.Equal(t, "s1", messages[0].SessionID)
	assert.NotEmpty(t, messages[0].ID)
	assert.NotZero(t, messages[0].CreatedAt)
}

func TestStore_ListEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryDatabase(), "s1")

	messages, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemoryDatabase()
	store := NewStore(db, "s1")

	require.NoError(t, store.Append(ctx, &types.Message{Role: "user", Content: "hello"}))
	require.NoError(t, store.Clear(ctx))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The history key remains addressable after Clear.
	keys, err := db.List(ctx, "messages:")
	require.NoError(t, err)
	assert.Equal(t, []string{"messages:s1"}, keys)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemoryDatabase()
	store := NewStore(db, "s1")

	require.NoError(t, store.Append(ctx, &types.Message{Role: "user", Content: "hello"}))
	require.NoError(t, store.Delete(ctx))

	keys, err := db.List(ctx, "messages:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_IsolatedPerSession(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemoryDatabase()
	a := NewStore(db, "a")
	b := NewStore(db, "b")

	require.NoError(t, a.Append(ctx, &types.Message{Role: "user", Content: "for a"}))

	got, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
