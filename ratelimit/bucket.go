// Package ratelimit implements the token-bucket rate limiter and circuit
// breaker of spec.md §4.6 (C6), gating message admission per (model,
// tier).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/arc-self/alchemist-core/alerr"
)

// Tier multiplies a model's base capacity and refill rate.
type Tier int

const (
	TierFree Tier = iota
	TierPro
	TierEnterprise
	TierAdmin
)

// Multiplier returns the tier's capacity/rate multiplier (spec.md §4.6:
// ×1, ×10, ×100, ×1000 respectively).
func (t Tier) Multiplier() float64 {
	switch t {
	case TierPro:
		return 10
	case TierEnterprise:
		return 100
	case TierAdmin:
		return 1000
	default:
		return 1
	}
}

// BucketKey identifies one token bucket: a (model, tier, subject-key)
// triple.
type BucketKey struct {
	Model      string
	Tier       Tier
	SubjectKey string
}

// BaseConfig is the un-multiplied capacity/rate a model is configured
// with before a tier's multiplier is applied.
type BaseConfig struct {
	Capacity float64
	Rate     float64 // tokens/sec
}

// Decision is the admit() outcome.
type Decision struct {
	Admitted   bool
	RetryAfter time.Duration // meaningful only when !Admitted
}

// Limiter holds one golang.org/x/time/rate.Limiter per BucketKey, built
// lazily from a model's BaseConfig and the key's tier multiplier. Reusing
// x/time/rate rather than hand-rolling a token bucket keeps the refill
// arithmetic (tokens += elapsed * r, capped at c) and the
// admit-without-consuming-when-cancelled property correct without
// reimplementing a well-tested primitive the wider pack already depends
// on transitively.
type Limiter struct {
	mu       sync.Mutex
	configs  map[string]BaseConfig // by model
	buckets  map[BucketKey]*rate.Limiter
	fallback BaseConfig
}

// NewLimiter builds a Limiter. fallback is used for any model with no
// explicit BaseConfig registered via Configure.
func NewLimiter(fallback BaseConfig) *Limiter {
	return &Limiter{
		configs:  make(map[string]BaseConfig),
		buckets:  make(map[BucketKey]*rate.Limiter),
		fallback: fallback,
	}
}

// Configure registers the base capacity/rate for a model.
func (l *Limiter) Configure(model string, cfg BaseConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[model] = cfg
}

func (l *Limiter) bucketFor(key BucketKey) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	cfg, ok := l.configs[key.Model]
	if !ok {
		cfg = l.fallback
	}
	mult := key.Tier.Multiplier()
	b := rate.NewLimiter(rate.Limit(cfg.Rate*mult), int(cfg.Capacity*mult))
	l.buckets[key] = b
	return b
}

// Admit consumes one token from key's bucket, or reports Denied with a
// retry_after. If ctx is cancelled before the decision is made, Admit
// returns a Timeout-kind error and consumes no token.
func (l *Limiter) Admit(ctx context.Context, key BucketKey) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, alerr.Wrap(alerr.KindTimeout, "ratelimit.Admit", err)
	}
	b := l.bucketFor(key)
	res := b.ReserveN(time.Now(), 1)
	if !res.OK() {
		// Bucket configured with capacity < 1: can never admit.
		return Decision{Admitted: false, RetryAfter: time.Second}, nil
	}
	delay := res.Delay()
	if delay <= 0 {
		return Decision{Admitted: true}, nil
	}
	res.Cancel()
	return Decision{Admitted: false, RetryAfter: delay}, nil
}
