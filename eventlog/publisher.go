package eventlog

import (
	"context"

	"github.com/arc-self/alchemist-core/kernel"
)

// Publisher is the fan-out side of a durable append: spec.md §4.5
// requires every durably-appended Event to reach the router on its own
// subject only after fsync completes, so the event log — not the
// producer — is what calls Publish. Defined locally instead of
// importing package router so eventlog never depends on router;
// router.Router already satisfies this interface structurally.
type Publisher interface {
	Publish(ctx context.Context, msg kernel.Msg) error
}

// publisherSetter is implemented by Log implementations that accept a
// Publisher after construction (currently only *FileLog). Wrappers like
// PGSnapshotMirror forward SetPublisher through this interface instead
// of duplicating the publish-after-fsync logic.
type publisherSetter interface {
	SetPublisher(p Publisher)
}
