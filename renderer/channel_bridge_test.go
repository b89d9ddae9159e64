package renderer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChannelBridgeFIFO covers testable property #10: for any two
// messages sent in order on one direction, received order matches send
// order.
func TestChannelBridgeFIFO(t *testing.T) {
	b := NewChannelBridge(10)
	ctx := context.Background()

	corr := uuid.New()
	first := CoreToRenderer{Kind: KindDialogTokenChunk, CorrelationID: corr, TokenChunk: "first"}
	second := CoreToRenderer{Kind: KindDialogTokenChunk, CorrelationID: corr, TokenChunk: "second"}

	require.NoError(t, b.SendToRenderer(ctx, first))
	require.NoError(t, b.SendToRenderer(ctx, second))

	got1, err := b.RecvFromCore(ctx)
	require.NoError(t, err)
	got2, err := b.RecvFromCore(ctx)
	require.NoError(t, err)

	assert.Equal(t, "first", got1.TokenChunk)
	assert.Equal(t, "second", got2.TokenChunk)
}

func TestChannelBridgeBlocksWhenFull(t *testing.T) {
	b := NewChannelBridge(1)
	ctx := context.Background()
	require.NoError(t, b.SendToRenderer(ctx, CoreToRenderer{Kind: KindPerfMetrics}))

	deadline, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := b.SendToRenderer(deadline, CoreToRenderer{Kind: KindPerfMetrics})
	require.Error(t, err, "a full channel blocks the producer until the deadline expires")
}

func TestChannelBridgeCloseSurfacesChannelClosed(t *testing.T) {
	b := NewChannelBridge(10)
	b.Close()

	err := b.SendToRenderer(context.Background(), CoreToRenderer{Kind: KindPerfMetrics})
	require.Error(t, err)

	_, recvErr := b.RecvFromCore(context.Background())
	require.Error(t, recvErr)
}

// TestStreamingChunkSequence models the Started→Chunk*→Complete boundary
// for an AI token stream, all sharing one correlation id.
func TestStreamingChunkSequence(t *testing.T) {
	b := NewChannelBridge(10)
	ctx := context.Background()
	corr := uuid.New()

	require.NoError(t, b.SendToRenderer(ctx, CoreToRenderer{Kind: KindDialogTokenStarted, CorrelationID: corr}))
	require.NoError(t, b.SendToRenderer(ctx, CoreToRenderer{Kind: KindDialogTokenChunk, CorrelationID: corr, TokenChunk: "hel"}))
	require.NoError(t, b.SendToRenderer(ctx, CoreToRenderer{Kind: KindDialogTokenChunk, CorrelationID: corr, TokenChunk: "lo"}))
	require.NoError(t, b.SendToRenderer(ctx, CoreToRenderer{Kind: KindDialogTokenComplete, CorrelationID: corr}))

	var kinds []CoreToRendererKind
	for i := 0; i < 4; i++ {
		msg, err := b.RecvFromCore(ctx)
		require.NoError(t, err)
		assert.Equal(t, corr, msg.CorrelationID)
		kinds = append(kinds, msg.Kind)
	}
	assert.Equal(t, []CoreToRendererKind{
		KindDialogTokenStarted, KindDialogTokenChunk, KindDialogTokenChunk, KindDialogTokenComplete,
	}, kinds)
}

func TestDirectionBRoundTrip(t *testing.T) {
	b := NewChannelBridge(10)
	ctx := context.Background()

	require.NoError(t, b.SendToCore(ctx, RendererToCore{Kind: KindUserInput, UserInput: "hello"}))
	msg, err := b.RecvFromRenderer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.UserInput)
}
