package renderer

import (
	"context"

	"github.com/arc-self/alchemist-core/alerr"
)

// ChannelBridge is the in-process transport: two bounded Go channels
// provide FIFO delivery with blocks-until-drained-or-deadline
// backpressure (spec.md §4.9). It is the transport used in tests and
// whenever the UI consumer runs in the same process as the core.
type ChannelBridge struct {
	toRenderer chan CoreToRenderer
	toCore     chan RendererToCore
	closed     chan struct{}
}

// NewChannelBridge builds a ChannelBridge with the given per-direction
// capacity.
func NewChannelBridge(capacity int) *ChannelBridge {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &ChannelBridge{
		toRenderer: make(chan CoreToRenderer, capacity),
		toCore:     make(chan RendererToCore, capacity),
		closed:     make(chan struct{}),
	}
}

func (b *ChannelBridge) SendToRenderer(ctx context.Context, msg CoreToRenderer) error {
	select {
	case <-b.closed:
		return alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.SendToRenderer")
	default:
	}
	select {
	case b.toRenderer <- msg:
		return nil
	case <-b.closed:
		return alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.SendToRenderer")
	case <-ctx.Done():
		return alerr.Wrap(alerr.KindTimeout, "renderer.ChannelBridge.SendToRenderer", ctx.Err())
	}
}

func (b *ChannelBridge) SendToCore(ctx context.Context, msg RendererToCore) error {
	select {
	case <-b.closed:
		return alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.SendToCore")
	default:
	}
	select {
	case b.toCore <- msg:
		return nil
	case <-b.closed:
		return alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.SendToCore")
	case <-ctx.Done():
		return alerr.Wrap(alerr.KindTimeout, "renderer.ChannelBridge.SendToCore", ctx.Err())
	}
}

func (b *ChannelBridge) RecvFromCore(ctx context.Context) (CoreToRenderer, error) {
	select {
	case msg, ok := <-b.toRenderer:
		if !ok {
			return CoreToRenderer{}, alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.RecvFromCore")
		}
		return msg, nil
	case <-b.closed:
		return CoreToRenderer{}, alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.RecvFromCore")
	case <-ctx.Done():
		return CoreToRenderer{}, alerr.Wrap(alerr.KindTimeout, "renderer.ChannelBridge.RecvFromCore", ctx.Err())
	}
}

func (b *ChannelBridge) RecvFromRenderer(ctx context.Context) (RendererToCore, error) {
	select {
	case msg, ok := <-b.toCore:
		if !ok {
			return RendererToCore{}, alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.RecvFromRenderer")
		}
		return msg, nil
	case <-b.closed:
		return RendererToCore{}, alerr.New(alerr.KindChannelClosed, "renderer.ChannelBridge.RecvFromRenderer")
	case <-ctx.Done():
		return RendererToCore{}, alerr.Wrap(alerr.KindTimeout, "renderer.ChannelBridge.RecvFromRenderer", ctx.Err())
	}
}

// Close terminates both directions. Safe to call once; a second call
// would panic on the double-close of closed, matching Go channel
// semantics — callers own the single-shutdown discipline, the same
// convention the teacher's NATS client uses for Conn.Drain/Close.
func (b *ChannelBridge) Close() {
	close(b.closed)
}

var _ Bridge = (*ChannelBridge)(nil)
