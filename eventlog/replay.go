package eventlog

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arc-self/alchemist-core/alerr"
)

// checkpointStore persists, per (stream, consumer name), the sequence
// number up to which a replay has been durably processed. On restart,
// Replay resumes just past the last checkpoint instead of at_sequence —
// at_sequence only matters for a consumer's very first run.
type checkpointStore struct {
	mu   sync.Mutex
	root string
}

func newCheckpointStore(root string) *checkpointStore {
	return &checkpointStore{root: root}
}

func (c *checkpointStore) path(stream, consumerName string) string {
	return filepath.Join(c.root, stream, "checkpoints", consumerName+".ckpt")
}

func (c *checkpointStore) load(stream, consumerName string) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path(stream, consumerName))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("eventlog: corrupt checkpoint file")
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func (c *checkpointStore) save(stream, consumerName string, sequence uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.path(stream, consumerName)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sequence)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Replay iterates stream through consumer, checkpointing every
// checkpointInterval records under the name "default" (one replay cursor
// per stream). Delivery is at-least-once: a crash between invoking
// consumer and the next checkpoint redelivers up to checkpointInterval
// already-processed records, so consumer must be idempotent by
// (stream, sequence), per spec.md §4.3.
func (l *FileLog) Replay(ctx context.Context, stream string, consumer Consumer, fromSequence uint64, checkpointInterval int) error {
	if checkpointInterval <= 0 {
		checkpointInterval = 1
	}
	ckpt := newCheckpointStore(l.root)
	start := fromSequence
	if last, ok, err := ckpt.load(stream, "default"); err != nil {
		return alerr.Wrap(alerr.KindTransport, "eventlog.Replay", err)
	} else if ok && last+1 > start {
		start = last + 1
	}

	records, err := l.Read(ctx, stream, start, 0)
	if err != nil {
		return err
	}

	sinceCheckpoint := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return alerr.Wrap(alerr.KindTimeout, "eventlog.Replay", err)
		}
		if err := consumer(ctx, rec); err != nil {
			return alerr.Wrap(alerr.KindTransport, "eventlog.Replay", err)
		}
		sinceCheckpoint++
		if sinceCheckpoint >= checkpointInterval {
			if err := ckpt.save(stream, "default", rec.Sequence); err != nil {
				return alerr.Wrap(alerr.KindTransport, "eventlog.Replay", err)
			}
			sinceCheckpoint = 0
		}
	}
	if sinceCheckpoint > 0 && len(records) > 0 {
		last := records[len(records)-1]
		if err := ckpt.save(stream, "default", last.Sequence); err != nil {
			return alerr.Wrap(alerr.KindTransport, "eventlog.Replay", err)
		}
	}
	return nil
}
