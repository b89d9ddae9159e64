package router

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
	"github.com/arc-self/alchemist-core/natsclient"
	"github.com/arc-self/alchemist-core/subject"
)

// DefaultOutboundBufferBytes is the default leaf outbound buffer limit
// from spec.md §5 ("buffer up to a configured limit (default 8 MiB) and
// then apply backpressure").
const DefaultOutboundBufferBytes = 8 << 20

// LeafConfig configures a leaf-mode NatsRouter.
type LeafConfig struct {
	HubURL              string
	OutboundBufferBytes int64 // 0 means DefaultOutboundBufferBytes
}

func (c LeafConfig) bufferLimit() int64 {
	if c.OutboundBufferBytes > 0 {
		return c.OutboundBufferBytes
	}
	return DefaultOutboundBufferBytes
}

// LeafRouter wraps a NatsRouter configured as a leaf node: it tracks every
// Subscribe call so subscriptions can be re-established after a hub
// reconnect, and buffers outbound publishes up to a byte limit while
// disconnected, applying backpressure past that limit rather than
// growing unbounded.
//
// Reconnection itself is nats.go's own reconnect loop, with the options
// natsclient.NewClient sets (retry on failed connect, unlimited
// attempts); no reconnect delay is configured, so the attempts are not
// spaced by an exponential backoff. Once nats.go reports a reconnect, the
// handler installed by NewLeafRouter logs it and re-registers every
// tracked Subscribe call. cenkalti/backoff/v4 is used only by Publish,
// to pace its wait while the outbound buffer is over the limit.
type LeafRouter struct {
	*NatsRouter

	cfg LeafConfig
	log *zap.Logger

	mu           sync.Mutex
	bufferedSize int64
	subInfo      []subscribeCall
}

type subscribeCall struct {
	pattern    subject.Pattern
	queueGroup string
	handler    Handler
}

// NewLeafRouter wires reconnect/resubscribe handlers onto client's
// underlying NATS connection and returns a leaf-mode Router.
func NewLeafRouter(client *natsclient.Client, cfg LeafConfig) *LeafRouter {
	lr := &LeafRouter{
		NatsRouter: NewNatsRouter(client),
		cfg:        cfg,
		log:        client.Log,
	}
	lr.log.Info("leafrouter: configured leaf mode", zap.String("hub_url", cfg.HubURL), zap.Int64("outbound_buffer_bytes", cfg.bufferLimit()))
	client.Conn.SetReconnectHandler(func(c *nats.Conn) {
		lr.log.Info("leafrouter: hub reconnected, resubscribing", zap.String("hub_url", lr.cfg.HubURL))
		lr.resubscribeAll()
	})
	return lr
}

// Subscribe records the call for replay-on-reconnect, then delegates.
func (lr *LeafRouter) Subscribe(pattern subject.Pattern, queueGroup string, handler Handler) (SubscriptionHandle, error) {
	lr.mu.Lock()
	lr.subInfo = append(lr.subInfo, subscribeCall{pattern: pattern, queueGroup: queueGroup, handler: handler})
	lr.mu.Unlock()
	return lr.NatsRouter.Subscribe(pattern, queueGroup, handler)
}

// Publish applies outbound backpressure: once bufferedSize would exceed
// the configured limit, Publish blocks (via a bounded retry with backoff)
// until the connection drains below the limit or ctx is cancelled, rather
// than growing the NATS client's internal buffer unboundedly.
func (lr *LeafRouter) Publish(ctx context.Context, msg kernel.Msg) error {
	payload := kernel.CanonicalBytes(msg)
	size := int64(len(payload))

	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		lr.mu.Lock()
		if lr.bufferedSize+size > lr.cfg.bufferLimit() && lr.NatsRouter.client.Conn.IsReconnecting() {
			lr.mu.Unlock()
			return alerr.New(alerr.KindRateLimited, "leafrouter.Publish")
		}
		lr.bufferedSize += size
		lr.mu.Unlock()
		return nil
	}, b)
	if err != nil {
		return alerr.Wrap(alerr.KindTransport, "leafrouter.Publish", err)
	}

	defer func() {
		lr.mu.Lock()
		lr.bufferedSize -= size
		lr.mu.Unlock()
	}()
	return lr.NatsRouter.Publish(ctx, msg)
}

// resubscribeAll re-registers every tracked Subscribe call, used by the
// reconnect handler after the hub connection is restored.
func (lr *LeafRouter) resubscribeAll() {
	lr.mu.Lock()
	calls := append([]subscribeCall(nil), lr.subInfo...)
	lr.mu.Unlock()

	for _, c := range calls {
		if _, err := lr.NatsRouter.Subscribe(c.pattern, c.queueGroup, c.handler); err != nil {
			lr.log.Warn("leafrouter: resubscribe failed", zap.String("pattern", c.pattern.String()))
		}
	}
}
