package eventlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/alchemist-core/alerr"
)

// PGSnapshotMirror additionally writes every snapshot to a Postgres table,
// for deployments that want snapshots queryable by SQL (e.g. an admin
// dashboard) alongside the file-backed log itself. It wraps a Log rather
// than replacing FileLog's Snapshot, mirroring the teacher's layered
// "core does the real thing, an adapter fans out a copy" pattern seen in
// audit-service's dual in-memory/Postgres write path.
type PGSnapshotMirror struct {
	Log
	pool *pgxpool.Pool
}

// NewPGSnapshotMirror wraps an existing Log with Postgres mirroring.
func NewPGSnapshotMirror(inner Log, pool *pgxpool.Pool) *PGSnapshotMirror {
	return &PGSnapshotMirror{Log: inner, pool: pool}
}

// SetPublisher forwards to the inner Log if it implements publisherSetter
// (true for *FileLog), so callers can wire a Publisher through the mirror
// exactly as they would against a bare *FileLog.
func (m *PGSnapshotMirror) SetPublisher(p Publisher) {
	if s, ok := m.Log.(publisherSetter); ok {
		s.SetPublisher(p)
	}
}

// EnsureSchema creates the mirror table if absent.
func (m *PGSnapshotMirror) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS eventlog_snapshots (
	id           TEXT PRIMARY KEY,
	stream       TEXT NOT NULL,
	at_sequence  BIGINT NOT NULL,
	state        BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := m.pool.Exec(ctx, ddl); err != nil {
		return alerr.Wrap(alerr.KindTransport, "eventlog.PGSnapshotMirror.EnsureSchema", err)
	}
	return nil
}

func (m *PGSnapshotMirror) Snapshot(ctx context.Context, stream string, atSequence uint64, state []byte) (SnapshotId, error) {
	id, err := m.Log.Snapshot(ctx, stream, atSequence, state)
	if err != nil {
		return "", err
	}
	const q = `INSERT INTO eventlog_snapshots (id, stream, at_sequence, state) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	if _, err := m.pool.Exec(ctx, q, string(id), stream, int64(atSequence), state); err != nil {
		return "", alerr.Wrap(alerr.KindTransport, "eventlog.PGSnapshotMirror.Snapshot", err)
	}
	return id, nil
}
