// Package busbridge implements the renderer bridge's bus-mode transport
// (spec.md §4.9): a subject-pair subscriber that translates between
// subject-encoded bus messages and the typed CoreToRenderer/
// RendererToCore protocol, preserving end-to-end backpressure.
package busbridge

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/natsclient"
	"github.com/arc-self/alchemist-core/renderer"
)

// subjectToUI/subjectToCore build the per-component subject pair under
// natsclient.SubjectRenderer ("RENDERER.>"): RENDERER.<component>.to_ui
// carries Direction A, RENDERER.<component>.to_core carries Direction B.
func subjectToUI(component string) string   { return "RENDERER." + component + ".to_ui" }
func subjectToCore(component string) string { return "RENDERER." + component + ".to_core" }

// BusBridge is a renderer.Bridge backed by plain NATS pub/sub (not
// JetStream — spec.md §4.9 never asks for durability here, only FIFO and
// backpressure within a live connection).
type BusBridge struct {
	client    *natsclient.Client
	component string

	toRenderer chan renderer.CoreToRenderer
	toCore     chan renderer.RendererToCore
	sub        *nats.Subscription
	closed     chan struct{}
}

// NewBusBridge subscribes component's inbound subject
// (RENDERER.<component>.to_core) and returns a Bridge whose SendToRenderer
// publishes to RENDERER.<component>.to_ui.
//
// Each inbound NATS message is decoded and pushed onto a bounded channel
// with a blocking send; since nats.go delivers to a plain (non-async)
// subscription one message at a time, a full channel stalls further
// delivery until the consumer drains it — backpressure carries through to
// the publisher's own buffered-write limits rather than being silently
// absorbed.
func NewBusBridge(client *natsclient.Client, component string, capacity int) (*BusBridge, error) {
	if capacity <= 0 {
		capacity = renderer.DefaultChannelCapacity
	}
	b := &BusBridge{
		client:     client,
		component:  component,
		toRenderer: make(chan renderer.CoreToRenderer, capacity),
		toCore:     make(chan renderer.RendererToCore, capacity),
		closed:     make(chan struct{}),
	}

	sub, err := client.Conn.Subscribe(subjectToCore(component), func(m *nats.Msg) {
		var msg renderer.RendererToCore
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			client.Log.Sugar().Warnf("busbridge: undecodable message on %s: %v", m.Subject, err)
			return
		}
		select {
		case b.toCore <- msg:
		case <-b.closed:
		}
	})
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "busbridge.NewBusBridge", err)
	}
	b.sub = sub
	return b, nil
}

func (b *BusBridge) SendToRenderer(ctx context.Context, msg renderer.CoreToRenderer) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return alerr.Wrap(alerr.KindTransport, "busbridge.SendToRenderer", err)
	}
	select {
	case <-b.closed:
		return alerr.New(alerr.KindChannelClosed, "busbridge.SendToRenderer")
	default:
	}
	if err := ctx.Err(); err != nil {
		return alerr.Wrap(alerr.KindTimeout, "busbridge.SendToRenderer", err)
	}
	if err := b.client.Conn.Publish(subjectToUI(b.component), data); err != nil {
		return alerr.Wrap(alerr.KindTransport, "busbridge.SendToRenderer", err)
	}
	return nil
}

// SendToCore publishes msg on RENDERER.<component>.to_core. That is the
// subject this bridge itself subscribes to (see NewBusBridge), so the
// message comes back through this bridge's own RecvFromRenderer.
func (b *BusBridge) SendToCore(ctx context.Context, msg renderer.RendererToCore) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return alerr.Wrap(alerr.KindTransport, "busbridge.SendToCore", err)
	}
	select {
	case <-b.closed:
		return alerr.New(alerr.KindChannelClosed, "busbridge.SendToCore")
	default:
	}
	if err := ctx.Err(); err != nil {
		return alerr.Wrap(alerr.KindTimeout, "busbridge.SendToCore", err)
	}
	if err := b.client.Conn.Publish(subjectToCore(b.component), data); err != nil {
		return alerr.Wrap(alerr.KindTransport, "busbridge.SendToCore", err)
	}
	return nil
}

func (b *BusBridge) RecvFromCore(ctx context.Context) (renderer.CoreToRenderer, error) {
	select {
	case msg, ok := <-b.toRenderer:
		if !ok {
			return renderer.CoreToRenderer{}, alerr.New(alerr.KindChannelClosed, "busbridge.RecvFromCore")
		}
		return msg, nil
	case <-b.closed:
		return renderer.CoreToRenderer{}, alerr.New(alerr.KindChannelClosed, "busbridge.RecvFromCore")
	case <-ctx.Done():
		return renderer.CoreToRenderer{}, alerr.Wrap(alerr.KindTimeout, "busbridge.RecvFromCore", ctx.Err())
	}
}

func (b *BusBridge) RecvFromRenderer(ctx context.Context) (renderer.RendererToCore, error) {
	select {
	case msg, ok := <-b.toCore:
		if !ok {
			return renderer.RendererToCore{}, alerr.New(alerr.KindChannelClosed, "busbridge.RecvFromRenderer")
		}
		return msg, nil
	case <-b.closed:
		return renderer.RendererToCore{}, alerr.New(alerr.KindChannelClosed, "busbridge.RecvFromRenderer")
	case <-ctx.Done():
		return renderer.RendererToCore{}, alerr.Wrap(alerr.KindTimeout, "busbridge.RecvFromRenderer", ctx.Err())
	}
}

// Close unsubscribes and terminates both local channels. Reconnection
// (spec.md §4.9) always builds a fresh BusBridge via NewBusBridge rather
// than resuming this one — dropped chunks during the outage are never
// replayed.
func (b *BusBridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	close(b.closed)
}

var _ renderer.Bridge = (*BusBridge)(nil)
