package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLRUPutGet(t *testing.T) {
	m := NewMemoryLRU(10)
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("v"), time.Minute))

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestMemoryLRUMiss(t *testing.T) {
	m := NewMemoryLRU(10)
	_, ok, err := m.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLRUExpiresOnTTL(t *testing.T) {
	m := NewMemoryLRU(10)
	fakeNow := time.Now()
	m.now = func() time.Time { return fakeNow }

	require.NoError(t, m.Put(context.Background(), "k", []byte("v"), time.Millisecond))

	_, ok, _ := m.Get(context.Background(), "k")
	assert.True(t, ok)

	fakeNow = fakeNow.Add(2 * time.Millisecond)
	_, ok, _ = m.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestMemoryLRUStrictEviction(t *testing.T) {
	m := NewMemoryLRU(2)
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Put(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, m.Put(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok, "a should have been evicted as least recently used")
	_, ok, _ = m.Get(ctx, "b")
	assert.True(t, ok)
	_, ok, _ = m.Get(ctx, "c")
	assert.True(t, ok)
}
