// Package router implements the Subject Router (C5): delivery of
// published messages to matching subscriptions, across in-process and
// NATS-backed (leaf/hub) transports, using the subject pattern algebra
// from package subject for matching and specificity.
package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
	"github.com/arc-self/alchemist-core/subject"
)

// Handler processes a delivered Msg. InProcessRouter runs each delivery's
// handler on a new goroutine, so a slow handler blocks no other delivery;
// two deliveries to the same subscription may run concurrently and in
// any order.
type Handler func(ctx context.Context, msg kernel.Msg)

// SubscriptionHandle identifies a registered subscription for Unsubscribe.
type SubscriptionHandle struct {
	ID         uuid.UUID
	Pattern    subject.Pattern
	QueueGroup string
}

// Router is the C5 contract (spec.md §4.4).
type Router interface {
	// Subscribe registers pattern. Subscriptions sharing a non-empty
	// queueGroup compete: exactly one member receives each matching
	// message. Subscriptions with no queue group all receive every
	// matching message (fan-out).
	Subscribe(pattern subject.Pattern, queueGroup string, handler Handler) (SubscriptionHandle, error)
	Unsubscribe(handle SubscriptionHandle) error
	// Publish validates msg's subject (already guaranteed by
	// kernel.Build*) and enqueues it to every matching subscription.
	Publish(ctx context.Context, msg kernel.Msg) error
	// Request publishes msg and awaits a single reply correlated by
	// CausationID == msg.ID, or fails with Timeout.
	Request(ctx context.Context, msg kernel.Msg, timeout time.Duration) (kernel.Msg, error)
}

// Introspector is implemented by Router implementations that can report
// their current subscription set, used by the admin HTTP surface's
// /v1/subscriptions route. NatsRouter does not implement it: NATS itself
// owns subscription state server-side, not this process.
type Introspector interface {
	Subscriptions() []SubscriptionHandle
}

type subscription struct {
	handle  SubscriptionHandle
	handler Handler
}

// InProcessRouter is an in-memory Router: subscription matching and
// queue-group round robin entirely within one process, useful for tests
// and for wiring the renderer bridge's in-process transport without a
// bus hop.
type InProcessRouter struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	groupCursor   map[string]int

	pendingMu sync.Mutex
	pending   map[uuid.UUID]chan kernel.Msg
}

// NewInProcessRouter constructs an empty router.
func NewInProcessRouter() *InProcessRouter {
	return &InProcessRouter{
		groupCursor: make(map[string]int),
		pending:     make(map[uuid.UUID]chan kernel.Msg),
	}
}

// Subscriptions returns a snapshot of every currently registered
// subscription, used by the admin introspection HTTP surface.
func (r *InProcessRouter) Subscriptions() []SubscriptionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SubscriptionHandle, 0, len(r.subscriptions))
	for _, s := range r.subscriptions {
		out = append(out, s.handle)
	}
	return out
}

func (r *InProcessRouter) Subscribe(pattern subject.Pattern, queueGroup string, handler Handler) (SubscriptionHandle, error) {
	h := SubscriptionHandle{ID: uuid.New(), Pattern: pattern, QueueGroup: queueGroup}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions = append(r.subscriptions, &subscription{handle: h, handler: handler})
	return h, nil
}

func (r *InProcessRouter) Unsubscribe(handle SubscriptionHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subscriptions {
		if s.handle.ID == handle.ID {
			r.subscriptions = append(r.subscriptions[:i], r.subscriptions[i+1:]...)
			return nil
		}
	}
	return alerr.New(alerr.KindNotFound, "router.Unsubscribe")
}

func (r *InProcessRouter) Publish(ctx context.Context, msg kernel.Msg) error {
	r.mu.RLock()
	matches := make([]*subscription, 0, len(r.subscriptions))
	for _, s := range r.subscriptions {
		if s.handle.Pattern.Matches(msg.Subject) {
			matches = append(matches, s)
		}
	}
	r.mu.RUnlock()

	// Group matches by queue group; ungrouped subscriptions all receive
	// the message, grouped ones compete within their group.
	byGroup := make(map[string][]*subscription)
	for _, s := range matches {
		if s.handle.QueueGroup == "" {
			go s.handler(ctx, msg)
			continue
		}
		byGroup[s.handle.QueueGroup] = append(byGroup[s.handle.QueueGroup], s)
	}
	for group, members := range byGroup {
		members = mostSpecificMembers(members)
		r.mu.Lock()
		idx := r.groupCursor[group] % len(members)
		r.groupCursor[group] = (r.groupCursor[group] + 1) % len(members)
		r.mu.Unlock()
		chosen := members[idx]
		go chosen.handler(ctx, msg)
	}

	r.deliverPendingReply(msg)
	return nil
}

// mostSpecificMembers narrows a queue group's matching members down to
// the most specific pattern(s) present, per spec.md's tie-breaking rule
// ("a more specific match is preferred for unicast delivery"): a queue
// group competing for one message should hand it to whichever
// subscription named the most precise subject, round-robining only
// among members tied at that specificity, not across the whole group.
func mostSpecificMembers(members []*subscription) []*subscription {
	if len(members) <= 1 {
		return members
	}
	sorted := make([]*subscription, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].handle.Pattern.MoreSpecific(sorted[j].handle.Pattern)
	})
	best := sorted[0].handle.Pattern
	out := sorted[:0:0]
	for _, s := range sorted {
		if best.MoreSpecific(s.handle.Pattern) {
			break
		}
		out = append(out, s)
	}
	return out
}

func (r *InProcessRouter) deliverPendingReply(msg kernel.Msg) {
	if msg.CausationID == uuid.Nil {
		return
	}
	r.pendingMu.Lock()
	ch, ok := r.pending[msg.CausationID]
	if ok {
		delete(r.pending, msg.CausationID)
	}
	r.pendingMu.Unlock()
	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (r *InProcessRouter) Request(ctx context.Context, msg kernel.Msg, timeout time.Duration) (kernel.Msg, error) {
	ch := make(chan kernel.Msg, 1)
	r.pendingMu.Lock()
	r.pending[msg.ID] = ch
	r.pendingMu.Unlock()

	if err := r.Publish(ctx, msg); err != nil {
		return kernel.Msg{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		r.pendingMu.Lock()
		delete(r.pending, msg.ID)
		r.pendingMu.Unlock()
		return kernel.Msg{}, alerr.New(alerr.KindTimeout, "router.Request")
	case <-ctx.Done():
		r.pendingMu.Lock()
		delete(r.pending, msg.ID)
		r.pendingMu.Unlock()
		return kernel.Msg{}, alerr.Wrap(alerr.KindTimeout, "router.Request", ctx.Err())
	}
}
