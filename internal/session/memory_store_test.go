package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	data := Data{Auth: Auth{IsAuthenticated: true, AccessToken: "tok"}}
	require.NoError(t, store.Set(ctx, "id-1", data, time.Hour))

	got, ok, err := store.Get(ctx, "id-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(ctx, "id-1"))

	_, ok, err = store.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_MissingIsNotAnError(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, ok, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ExpiredEntryIsGone(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "id-1", Data{}, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := store.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "id-1", Data{State: "one"}, time.Hour))
	require.NoError(t, store.Set(ctx, "id-2", Data{State: "two"}, time.Hour))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]Data{}
	for _, rec := range records {
		byID[rec.ID] = rec.Data
	}
	assert.Equal(t, "one", byID["id-1"].State)
	assert.Equal(t, "two", byID["id-2"].State)
}
