package eventlog

import (
	"context"

	"github.com/arc-self/alchemist-core/kernel"
)

// SnapshotId identifies a recorded aggregate-state snapshot; it does not
// reference a position in the log itself, only the fact that one was
// taken (spec.md §4.3: snapshot "does NOT modify the log").
type SnapshotId string

// Consumer processes records delivered by Replay. Implementations must be
// idempotent by (stream, sequence): Replay delivers at-least-once.
type Consumer func(ctx context.Context, rec EventRecord) error

// Log is the Event Log contract (spec.md §4.3, C3).
type Log interface {
	// Append assigns sequence = last+1, prev_cid = last.cid, computes cid
	// over the full record, and writes durably before returning. Appends
	// to the same stream are serialized; appends to distinct streams
	// proceed independently.
	Append(ctx context.Context, stream string, msg kernel.Msg) (EventRecord, error)

	// Read produces up to limit records from stream in ascending sequence
	// order starting at fromSequence. A limit <= 0 means "no limit".
	Read(ctx context.Context, stream string, fromSequence uint64, limit int) ([]EventRecord, error)

	// ValidateChain recomputes CIDs and verifies prev-links over
	// [from,to], returning false (never an error) on a merely-broken
	// chain; it returns an error only for an I/O failure reading the
	// range itself.
	ValidateChain(ctx context.Context, stream string, from, to uint64) (bool, error)

	// Snapshot records an external aggregate-state snapshot at a given
	// sequence. It never modifies the log.
	Snapshot(ctx context.Context, stream string, atSequence uint64, state []byte) (SnapshotId, error)

	// Replay iterates stream through consumer starting at fromSequence,
	// checkpointing consumer position every checkpointInterval records.
	// On a later call the replay resumes from the last checkpoint, not
	// fromSequence, unless no checkpoint exists yet.
	Replay(ctx context.Context, stream string, consumer Consumer, fromSequence uint64, checkpointInterval int) error
}
