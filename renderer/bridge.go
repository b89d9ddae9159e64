// Package renderer implements the renderer bridge of spec.md §4.9 (C9): a
// typed, bounded, backpressured pipe between the single-threaded UI
// consumer and the concurrent core.
package renderer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultChannelCapacity is the bounded channel depth per direction
// (spec.md §4.9: "bounded capacity B (default 100)").
const DefaultChannelCapacity = 100

// CoreToRendererKind discriminates the Direction-A variant carried by a
// CoreToRenderer message. A closed tagged enum, not an interface
// hierarchy, per SPEC_FULL.md §3's design note.
type CoreToRendererKind int

const (
	KindDashboardSnapshot CoreToRendererKind = iota
	KindDialogTokenStarted
	KindDialogTokenChunk
	KindDialogTokenComplete
	KindDialogTokenError
	KindDomainEvent
	KindPerfMetrics
)

// CoreToRenderer is a Direction-A (Core→UI) message.
type CoreToRenderer struct {
	Kind          CoreToRendererKind
	CorrelationID uuid.UUID

	DashboardSnapshot []byte // KindDashboardSnapshot
	TokenChunk        string // KindDialogTokenChunk
	DomainEvent       []byte // KindDomainEvent (canonical-encoded kernel.Msg)
	PerfMetrics       map[string]float64
	ErrorMessage      string // KindDialogTokenError
}

// RendererToCoreKind discriminates the Direction-B variant.
type RendererToCoreKind int

const (
	KindUserInput RendererToCoreKind = iota
	KindRefreshRequest
	KindWindowLifecycle
)

// RendererToCore is a Direction-B (UI→Core) message.
type RendererToCore struct {
	Kind          RendererToCoreKind
	CorrelationID uuid.UUID

	UserInput       string
	LifecycleEvent  string // e.g. "closed", "minimized"
}

// Bridge is the typed async↔sync transport contract. Both in-process and
// bus-mode transports implement it identically, so callers (e.g. a UI
// event loop) never know which is in play.
type Bridge interface {
	// SendToRenderer delivers msg on Direction A. It blocks until the
	// channel has room or deadline expires, at which point it returns a
	// Timeout-flavored error; it never drops.
	SendToRenderer(ctx context.Context, msg CoreToRenderer) error
	// SendToCore delivers msg on Direction B with the same blocking
	// contract as SendToRenderer.
	SendToCore(ctx context.Context, msg RendererToCore) error
	// RecvFromCore reads the next Direction-A message, blocking until one
	// arrives, the deadline expires, or the channel is closed.
	RecvFromCore(ctx context.Context) (CoreToRenderer, error)
	// RecvFromRenderer reads the next Direction-B message.
	RecvFromRenderer(ctx context.Context) (RendererToCore, error)
	// Close terminates both directions; ChannelClosed is then surfaced to
	// both ends on subsequent Send/Recv calls.
	Close()
}

// chunkDeadline is a 30-second bound on how long a streaming chunk
// sequence may wait between Started and Complete|Error. Neither
// ChannelBridge nor BusBridge reads it; both rely on the caller's context.
const chunkDeadline = 30 * time.Second
