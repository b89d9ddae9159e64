package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
	"github.com/arc-self/alchemist-core/natsclient"
	"github.com/arc-self/alchemist-core/subject"
)

// NatsRouter implements Router over a plain (non-JetStream) NATS
// connection: NATS's own Subscribe/QueueSubscribe already give exactly
// the fan-out-vs-competing-consumer semantics spec.md §4.4 asks for, so
// this adapter is a thin translation layer rather than a reimplementation
// — register pattern.String() as the NATS subject filter, decode with
// kernel.Decode on receipt, and let the server do the matching. Durable
// persistence of Event records is a separate concern, handled by
// eventlog.Log and wired in by the caller's publish pipeline, not by this
// router.
type NatsRouter struct {
	client *natsclient.Client
	subs   map[string]*nats.Subscription // keyed by SubscriptionHandle.ID.String()
}

// NewNatsRouter wraps an already-connected Client.
func NewNatsRouter(client *natsclient.Client) *NatsRouter {
	return &NatsRouter{client: client, subs: make(map[string]*nats.Subscription)}
}

func (r *NatsRouter) Subscribe(pattern subject.Pattern, queueGroup string, handler Handler) (SubscriptionHandle, error) {
	h := SubscriptionHandle{ID: uuid.New(), Pattern: pattern, QueueGroup: queueGroup}
	cb := func(m *nats.Msg) {
		msg, err := kernel.Decode(m.Data)
		if err != nil {
			r.client.Log.Warn("natsrouter: undecodable message dropped")
			return
		}
		handler(context.Background(), msg)
	}

	var sub *nats.Subscription
	var err error
	if queueGroup != "" {
		sub, err = r.client.Conn.QueueSubscribe(pattern.String(), queueGroup, cb)
	} else {
		sub, err = r.client.Conn.Subscribe(pattern.String(), cb)
	}
	if err != nil {
		return SubscriptionHandle{}, alerr.Wrap(alerr.KindTransport, "natsrouter.Subscribe", err)
	}
	r.subs[h.ID.String()] = sub
	return h, nil
}

func (r *NatsRouter) Unsubscribe(handle SubscriptionHandle) error {
	sub, ok := r.subs[handle.ID.String()]
	if !ok {
		return alerr.New(alerr.KindNotFound, "natsrouter.Unsubscribe")
	}
	delete(r.subs, handle.ID.String())
	if err := sub.Unsubscribe(); err != nil {
		return alerr.Wrap(alerr.KindTransport, "natsrouter.Unsubscribe", err)
	}
	return nil
}

func (r *NatsRouter) Publish(ctx context.Context, msg kernel.Msg) error {
	if err := r.client.Conn.Publish(msg.Subject.String(), kernel.CanonicalBytes(msg)); err != nil {
		return alerr.Wrap(alerr.KindTransport, "natsrouter.Publish", err)
	}
	return nil
}

func (r *NatsRouter) Request(ctx context.Context, msg kernel.Msg, timeout time.Duration) (kernel.Msg, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	reply, err := r.client.Conn.RequestWithContext(ctx, msg.Subject.String(), kernel.CanonicalBytes(msg))
	if err == nats.ErrTimeout || ctx.Err() != nil {
		return kernel.Msg{}, alerr.New(alerr.KindTimeout, "natsrouter.Request")
	}
	if err != nil {
		return kernel.Msg{}, alerr.Wrap(alerr.KindTransport, "natsrouter.Request", err)
	}
	decoded, err := kernel.Decode(reply.Data)
	if err != nil {
		return kernel.Msg{}, alerr.Wrap(alerr.KindTransport, "natsrouter.Request", err)
	}
	return decoded, nil
}
