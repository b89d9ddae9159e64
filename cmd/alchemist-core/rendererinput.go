package main

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/kernel"
	"github.com/arc-self/alchemist-core/renderer"
)

// rendererInputOwner is the fixed OwnerID stamped on events admitted
// from the renderer bridge. spec.md §4.9's RendererToCore envelope
// carries no owner identity of its own (that's a UI-session concept,
// not a kernel one), so every renderer-originated event is attributed
// to this single well-known owner rather than inventing an identity the
// wire protocol never defined.
var rendererInputOwner = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// rendererInputSubject is the Event subject every RendererToCore
// message is admitted under. The renderer bridge is a UI↔core pipe, not
// a domain-event source, so there is exactly one subject for "the UI
// sent core something"; downstream consumers branch on msg.Payload.
var rendererInputSubject = kernel.Subject{"renderer", "input", "received", "v1"}

// consumeRendererInput is Admit's real production call site: every
// Direction-B message the renderer bridge receives is translated into a
// kernel Event and admitted through the pipeline, giving C9 (the
// renderer bridge) an actual path into C1–C3 instead of sitting wired
// up end-to-end but never fed anything.
func consumeRendererInput(ctx context.Context, bridge renderer.Bridge, pl *pipeline, maxInline int, log *zap.Logger) {
	for {
		msg, err := bridge.RecvFromRenderer(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("rendererinput: recv failed", zap.Error(err))
			return
		}

		built, err := kernel.BuildEvent(rendererInputSubject, rendererInputPayload(msg), rendererInputOwner, kernel.Options{
			Correlation: msg.CorrelationID,
			MaxInline:   maxInline,
		})
		if err != nil {
			log.Warn("rendererinput: build event failed", zap.Error(err))
			continue
		}

		if err := pl.Admit(ctx, built); err != nil {
			log.Warn("rendererinput: admit failed", zap.Error(err), zap.String("subject", built.Subject.String()))
		}
	}
}

func rendererInputPayload(msg renderer.RendererToCore) []byte {
	if msg.UserInput != "" {
		return []byte(msg.UserInput)
	}
	return []byte(msg.LifecycleEvent)
}
