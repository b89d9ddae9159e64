package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/ratelimit"
)

// TwoTier combines a primary (remote) tier with a fallback (in-process)
// tier per spec.md §4.8: get tries primary first, falling back to
// fallback on a miss or a primary error; put writes best-effort to both —
// a fallback write failure never fails the call, a primary write failure
// is logged the same way the teacher logs Redis write failures
// (authz.go's "redis cache write error") without surfacing to the
// caller. Breaker guards the primary tier: once Redis starts failing
// repeatedly, TwoTier stops even trying it and goes straight to the
// in-process fallback until the breaker lets a probe through again.
type TwoTier struct {
	Primary  ResponseCache
	Fallback ResponseCache
	Breaker  *ratelimit.Breaker
	Log      *zap.Logger
}

// NewTwoTier builds a TwoTier cache. breaker may be nil, in which case
// the primary tier is always attempted (matching the pre-breaker
// behavior).
func NewTwoTier(primary, fallback ResponseCache, breaker *ratelimit.Breaker, log *zap.Logger) *TwoTier {
	return &TwoTier{Primary: primary, Fallback: fallback, Breaker: breaker, Log: log}
}

// primaryAllowed reports whether the primary tier should be attempted
// this call, consulting Breaker when one is configured.
func (t *TwoTier) primaryAllowed() bool {
	if t.Primary == nil {
		return false
	}
	if t.Breaker == nil {
		return true
	}
	ok, _ := t.Breaker.Allow()
	return ok
}

// recordOutcome reports a primary-tier call's result to Breaker, a
// no-op when no breaker is configured.
func (t *TwoTier) recordOutcome(err error) {
	if t.Breaker == nil {
		return
	}
	if err != nil {
		t.Breaker.RecordFailure()
		return
	}
	t.Breaker.RecordSuccess()
}

func (t *TwoTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.primaryAllowed() {
		val, ok, err := t.Primary.Get(ctx, key)
		t.recordOutcome(err)
		if err == nil && ok {
			return val, true, nil
		}
		if err != nil && t.Log != nil {
			t.Log.Warn("cache: primary get failed, falling back", zap.String("key", key), zap.Error(err))
		}
	}
	if t.Fallback == nil {
		return nil, false, nil
	}
	return t.Fallback.Get(ctx, key)
}

func (t *TwoTier) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if t.primaryAllowed() {
		err := t.Primary.Put(ctx, key, value, ttl)
		t.recordOutcome(err)
		if err != nil && t.Log != nil {
			t.Log.Warn("cache: primary put failed", zap.String("key", key), zap.Error(err))
		}
	}
	if t.Fallback != nil {
		if err := t.Fallback.Put(ctx, key, value, ttl); err != nil && t.Log != nil {
			t.Log.Warn("cache: fallback put failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

var _ ResponseCache = (*TwoTier)(nil)
