package contentstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
)

// FSStore is a filesystem-backed content-addressed blob store: one file per
// Cid, sharded two levels deep by the Cid's text form to keep any single
// directory from growing unbounded (the same sharding idiom content-
// addressed stores like git and IPFS use; the teacher's disk cache keeps a
// flat directory because it is bounded by an LRU capacity — this store has
// no such bound, so it shards).
type FSStore struct {
	root string
	log  *zap.Logger

	mu sync.Mutex // serializes writes of the same Cid; reads are lock-free
}

// NewFSStore creates (if needed) root and returns a store rooted there.
func NewFSStore(root string, log *zap.Logger) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("contentstore: create root: %w", err)
	}
	return &FSStore{root: root, log: log}, nil
}

func (s *FSStore) pathFor(cid kernel.Cid) string {
	name := cid.String()
	shard := name
	if len(shard) > 4 {
		shard = shard[:4]
	}
	return filepath.Join(s.root, shard[:2], shard[2:4], name)
}

// Put writes data under its content-derived path. Idempotent: if the file
// already exists its content is assumed identical (impossible to differ,
// barring a hash collision) and the write is skipped.
func (s *FSStore) Put(ctx context.Context, data []byte) (kernel.Cid, error) {
	cid, err := kernel.CidOfBytes(data)
	if err != nil {
		return kernel.Cid{}, alerr.Wrap(alerr.KindTransport, "contentstore.Put", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathFor(cid)
	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kernel.Cid{}, alerr.Wrap(alerr.KindTransport, "contentstore.Put", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return kernel.Cid{}, alerr.Wrap(alerr.KindTransport, "contentstore.Put", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kernel.Cid{}, alerr.Wrap(alerr.KindTransport, "contentstore.Put", err)
	}
	s.log.Debug("contentstore: put", zap.String("cid", cid.String()), zap.Int("bytes", len(data)))
	return cid, nil
}

func (s *FSStore) Get(ctx context.Context, cid kernel.Cid) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(cid))
	if os.IsNotExist(err) {
		return nil, alerr.New(alerr.KindNotFound, "contentstore.Get")
	}
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "contentstore.Get", err)
	}
	return data, nil
}

func (s *FSStore) Has(ctx context.Context, cid kernel.Cid) (bool, error) {
	_, err := os.Stat(s.pathFor(cid))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, alerr.Wrap(alerr.KindTransport, "contentstore.Has", err)
	}
	return true, nil
}
