// Package contentstore maps arbitrary byte blobs to stable, content-derived
// identifiers and back (C2). Content is immutable once stored; the store
// never exposes deletion to the core — if a deployment needs to reclaim
// space that is an out-of-band administrative action against the
// underlying filesystem or database, never a method on Store.
package contentstore

import (
	"context"

	"github.com/arc-self/alchemist-core/kernel"
)

// Store is the Content Store contract (spec.md §4.2). Put is idempotent:
// the same bytes always map to the same Cid, because the Cid is derived
// from the bytes themselves (kernel.CidOfBytes).
type Store interface {
	Put(ctx context.Context, data []byte) (kernel.Cid, error)
	Get(ctx context.Context, cid kernel.Cid) ([]byte, error)
	Has(ctx context.Context, cid kernel.Cid) (bool, error)
}
