package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arc-self/alchemist-core/alerr"
)

// RemoteRedis is the primary tier, a thin wrapper over go-redis/v9's
// Get/Set, matching the teacher's direct redis.Client usage in the
// public API's SDK handler (redis.Nil distinguishes a miss from an
// error, same as there).
type RemoteRedis struct {
	client *redis.Client
}

// NewRemoteRedis wraps an existing *redis.Client.
func NewRemoteRedis(client *redis.Client) *RemoteRedis {
	return &RemoteRedis{client: client}
}

func (r *RemoteRedis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, alerr.Wrap(alerr.KindTransport, "cache.RemoteRedis.Get", err)
	}
	return val, true, nil
}

func (r *RemoteRedis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return alerr.Wrap(alerr.KindTransport, "cache.RemoteRedis.Put", err)
	}
	return nil
}

var _ ResponseCache = (*RemoteRedis)(nil)
