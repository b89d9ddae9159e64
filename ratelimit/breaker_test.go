package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCircuitTransitions covers testable property #9: starting from
// Closed, exactly F consecutive failures reach Open; exactly one probe is
// permitted in HalfOpen; S consecutive successes return to Closed.
func TestCircuitTransitions(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	assert.Equal(t, Closed, b.State())

	ok, err := b.Allow()
	require.NoError(t, err)
	assert.True(t, ok)
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())

	_, err = b.Allow()
	require.Error(t, err)

	fakeNow = fakeNow.Add(20 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	allowed, err := b.Allow()
	require.NoError(t, err)
	assert.True(t, allowed)
	_, err = b.Allow()
	require.Error(t, err, "only one probe permitted in HalfOpen")

	b.RecordSuccess()
	assert.Equal(t, HalfOpen, b.State())

	allowed, err = b.Allow()
	require.NoError(t, err)
	assert.True(t, allowed)
	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
}

func TestCircuitHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Millisecond})
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	b.RecordFailure()
	assert.Equal(t, Open, b.State())

	fakeNow = fakeNow.Add(2 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	_, err := b.Allow()
	require.NoError(t, err)
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}
