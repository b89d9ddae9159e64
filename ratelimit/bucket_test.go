package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateLimitSteadyState covers testable property #6 and scenario S4:
// a Free-tier bucket with c=60, r=1/s admits exactly 60 requests in one
// tick, then denies the next 10 with a retry_after of about one second.
func TestRateLimitSteadyState(t *testing.T) {
	l := NewLimiter(BaseConfig{Capacity: 60, Rate: 1})
	l.Configure("gpt", BaseConfig{Capacity: 60, Rate: 1})
	key := BucketKey{Model: "gpt", Tier: TierFree, SubjectKey: "user-1"}
	ctx := context.Background()

	admitted := 0
	for i := 0; i < 60; i++ {
		d, err := l.Admit(ctx, key)
		require.NoError(t, err)
		if d.Admitted {
			admitted++
		}
	}
	assert.Equal(t, 60, admitted)

	for i := 0; i < 10; i++ {
		d, err := l.Admit(ctx, key)
		require.NoError(t, err)
		assert.False(t, d.Admitted)
		assert.GreaterOrEqual(t, d.RetryAfter, time.Second-time.Millisecond)
	}
}

func TestRateLimitTierMultiplier(t *testing.T) {
	l := NewLimiter(BaseConfig{Capacity: 1, Rate: 1})
	l.Configure("gpt", BaseConfig{Capacity: 1, Rate: 1})
	ctx := context.Background()

	adminKey := BucketKey{Model: "gpt", Tier: TierAdmin, SubjectKey: "admin-1"}
	admitted := 0
	for i := 0; i < 1000; i++ {
		d, err := l.Admit(ctx, adminKey)
		require.NoError(t, err)
		if d.Admitted {
			admitted++
		}
	}
	assert.Equal(t, 1000, admitted)
}

func TestAdmitRespectsCancelledContext(t *testing.T) {
	l := NewLimiter(BaseConfig{Capacity: 10, Rate: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Admit(ctx, BucketKey{Model: "gpt", Tier: TierFree, SubjectKey: "u"})
	require.Error(t, err)
}
