// Package middleware carries request-scoped identity through
// context.Context and provides small echo.MiddlewareFunc helpers shared
// by the admin HTTP surface, adapted from the teacher's
// packages/go-core/middleware for alchemist-core's UUID-typed owner,
// correlation, and causation ids (spec.md §3) instead of the teacher's
// string user/org ids.
package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ownerIDKey       contextKey = "owner_id"
	correlationIDKey contextKey = "correlation_id"
	causationIDKey   contextKey = "causation_id"
)

// WithOwnerID returns a new context carrying the acting owner's id.
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// WithCorrelationID returns a new context carrying the request's
// correlation id, propagated to every Msg the request's handling
// produces (spec.md §5 ordering guarantee (iii)).
func WithCorrelationID(ctx context.Context, correlationID uuid.UUID) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// WithCausationID returns a new context carrying the id of the message
// that caused whatever the handler currently processing ctx is about to
// produce.
func WithCausationID(ctx context.Context, causationID uuid.UUID) context.Context {
	return context.WithValue(ctx, causationIDKey, causationID)
}

// OwnerID extracts the owner id set by WithOwnerID, if any.
func OwnerID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ownerIDKey).(uuid.UUID)
	return v, ok
}

// CorrelationID extracts the correlation id set by WithCorrelationID, if
// any.
func CorrelationID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(correlationIDKey).(uuid.UUID)
	return v, ok
}

// CausationID extracts the causation id set by WithCausationID, if any.
func CausationID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(causationIDKey).(uuid.UUID)
	return v, ok
}
