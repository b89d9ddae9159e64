// Package cache implements the two-tier response cache of spec.md §4.8
// (C8): a remote primary tier with an in-process LRU fallback.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ResponseCache is the C8 contract: get checks primary, falling back to
// the in-process tier on a miss or when primary is unavailable; put
// writes best-effort to both tiers.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// StableKey hashes canonicalized input bytes into a stable cache key, so
// callers never construct keys by hand-formatting request fields (a
// source of cache-poisoning bugs when two different inputs format to the
// same string).
func StableKey(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
