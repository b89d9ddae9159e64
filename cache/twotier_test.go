package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/alchemist-core/ratelimit"
)

// fakeCache is a minimal in-memory ResponseCache double used to exercise
// TwoTier's fallback behavior without a live Redis instance.
type fakeCache struct {
	data  map[string][]byte
	err   error
	calls int
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	return nil
}

func TestTwoTierGetPrefersPrimary(t *testing.T) {
	primary := newFakeCache()
	fallback := newFakeCache()
	primary.data["k"] = []byte("from-primary")
	fallback.data["k"] = []byte("from-fallback")

	tt := NewTwoTier(primary, fallback, nil, zaptest.NewLogger(t))
	v, ok, err := tt.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-primary", string(v))
}

func TestTwoTierGetFallsBackOnPrimaryError(t *testing.T) {
	primary := newFakeCache()
	primary.err = assert.AnError
	fallback := newFakeCache()
	fallback.data["k"] = []byte("from-fallback")

	tt := NewTwoTier(primary, fallback, nil, zaptest.NewLogger(t))
	v, ok, err := tt.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-fallback", string(v))
}

func TestTwoTierGetFallsBackOnPrimaryMiss(t *testing.T) {
	primary := newFakeCache()
	fallback := newFakeCache()
	fallback.data["k"] = []byte("from-fallback")

	tt := NewTwoTier(primary, fallback, nil, zaptest.NewLogger(t))
	v, ok, err := tt.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-fallback", string(v))
}

func TestTwoTierPutWritesBothTiers(t *testing.T) {
	primary := newFakeCache()
	fallback := newFakeCache()

	tt := NewTwoTier(primary, fallback, nil, zaptest.NewLogger(t))
	require.NoError(t, tt.Put(context.Background(), "k", []byte("v"), time.Minute))

	assert.Equal(t, "v", string(primary.data["k"]))
	assert.Equal(t, "v", string(fallback.data["k"]))
}

func TestTwoTierPutSucceedsDespitePrimaryFailure(t *testing.T) {
	primary := newFakeCache()
	primary.err = assert.AnError
	fallback := newFakeCache()

	tt := NewTwoTier(primary, fallback, nil, zaptest.NewLogger(t))
	err := tt.Put(context.Background(), "k", []byte("v"), time.Minute)
	require.NoError(t, err, "a primary write failure is logged, not surfaced")
	assert.Equal(t, "v", string(fallback.data["k"]))
}

func TestStableKeyDeterministic(t *testing.T) {
	a := StableKey([]byte("canonical-input"))
	b := StableKey([]byte("canonical-input"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, StableKey([]byte("different-input")))
}

// TestTwoTierBreakerTripsAfterRepeatedPrimaryFailures covers the breaker
// wiring: once FailureThreshold consecutive primary errors have been
// recorded, the breaker opens and TwoTier stops calling the primary tier
// at all, going straight to fallback without incurring another
// round-trip to the (presumed down) primary.
func TestTwoTierBreakerTripsAfterRepeatedPrimaryFailures(t *testing.T) {
	primary := newFakeCache()
	primary.err = assert.AnError
	fallback := newFakeCache()
	fallback.data["k"] = []byte("from-fallback")

	breaker := ratelimit.NewBreaker(ratelimit.BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute})
	tt := NewTwoTier(primary, fallback, breaker, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		v, ok, err := tt.Get(context.Background(), "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "from-fallback", string(v))
	}
	assert.Equal(t, ratelimit.Open, breaker.State())

	primary.calls = 0
	_, _, err := tt.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 0, primary.calls, "breaker should have short-circuited the primary call entirely")
}
