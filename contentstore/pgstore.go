package contentstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
)

// PGStore is a Postgres-backed alternative to FSStore, grounded in the
// teacher's pgxpool-per-service convention (audit-service and
// iam-service both open a *pgxpool.Pool in main and hand it to their
// storage layer). Suited to deployments that already run Postgres for the
// event log snapshot table and want one durability story instead of two.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing pool. The caller owns the pool's lifecycle
// (construction with the otelpgx tracer, and Close).
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the backing table if it does not exist. Called once
// at startup, mirroring the teacher's migration-on-boot pattern for small
// services without a dedicated migration tool.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS content_blobs (
	cid  TEXT PRIMARY KEY,
	data BYTEA NOT NULL
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return alerr.Wrap(alerr.KindTransport, "contentstore.EnsureSchema", err)
	}
	return nil
}

func (s *PGStore) Put(ctx context.Context, data []byte) (kernel.Cid, error) {
	cid, err := kernel.CidOfBytes(data)
	if err != nil {
		return kernel.Cid{}, alerr.Wrap(alerr.KindTransport, "contentstore.Put", err)
	}
	const q = `INSERT INTO content_blobs (cid, data) VALUES ($1, $2) ON CONFLICT (cid) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, cid.String(), data); err != nil {
		return kernel.Cid{}, alerr.Wrap(alerr.KindTransport, "contentstore.Put", err)
	}
	return cid, nil
}

func (s *PGStore) Get(ctx context.Context, cid kernel.Cid) ([]byte, error) {
	const q = `SELECT data FROM content_blobs WHERE cid = $1`
	var data []byte
	err := s.pool.QueryRow(ctx, q, cid.String()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, alerr.New(alerr.KindNotFound, "contentstore.Get")
	}
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "contentstore.Get", err)
	}
	return data, nil
}

func (s *PGStore) Has(ctx context.Context, cid kernel.Cid) (bool, error) {
	const q = `SELECT 1 FROM content_blobs WHERE cid = $1`
	var ignored int
	err := s.pool.QueryRow(ctx, q, cid.String()).Scan(&ignored)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, alerr.Wrap(alerr.KindTransport, "contentstore.Has", err)
	}
	return true, nil
}
