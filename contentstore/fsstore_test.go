package contentstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
)

func newTestFSStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "blobs"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestFSStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestFSStore(t)

	cid, err := s.Put(ctx, []byte("hello content store"))
	require.NoError(t, err)

	got, err := s.Get(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, "hello content store", string(got))
}

func TestFSStorePutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestFSStore(t)

	cid1, err := s.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	cid2, err := s.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	assert.True(t, cid1.Equal(cid2))
}

func TestFSStoreGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestFSStore(t)

	missing, err := kernel.CidOfBytes([]byte("never stored"))
	require.NoError(t, err)

	_, err = s.Get(ctx, missing)
	require.Error(t, err)
	assert.True(t, alerr.Is(err, alerr.KindNotFound))
}

func TestFSStoreHas(t *testing.T) {
	ctx := context.Background()
	s := newTestFSStore(t)

	cid, err := s.Put(ctx, []byte("present"))
	require.NoError(t, err)

	ok, err := s.Has(ctx, cid)
	require.NoError(t, err)
	assert.True(t, ok)

	missing, err := kernel.CidOfBytes([]byte("absent"))
	require.NoError(t, err)
	ok, err = s.Has(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}
