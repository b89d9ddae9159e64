package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/alchemist-core/kernel"
	"github.com/arc-self/alchemist-core/subject"
)

func mustPattern(t *testing.T, s string) subject.Pattern {
	t.Helper()
	p, err := subject.ParsePattern(s)
	require.NoError(t, err)
	return p
}

func buildRouterEvent(t *testing.T, s kernel.Subject) kernel.Msg {
	t.Helper()
	m, err := kernel.BuildEvent(s, []byte("payload"), uuid.New(), kernel.Options{})
	require.NoError(t, err)
	return m
}

// TestFanOutDelivery covers scenario S1's router half: subscribers whose
// patterns match the published subject each receive it once; a
// non-matching subscriber receives nothing.
func TestFanOutDelivery(t *testing.T) {
	r := NewInProcessRouter()
	subj := kernel.Subject{"graph", "node", "added", "v1"}

	var mu sync.Mutex
	received := map[string]int{}
	record := func(name string) Handler {
		return func(ctx context.Context, msg kernel.Msg) {
			mu.Lock()
			received[name]++
			mu.Unlock()
		}
	}

	_, err := r.Subscribe(mustPattern(t, "graph.node.added.v1"), "", record("exact"))
	require.NoError(t, err)
	_, err = r.Subscribe(mustPattern(t, "graph.node.*.v1"), "", record("single"))
	require.NoError(t, err)
	_, err = r.Subscribe(mustPattern(t, "graph.>"), "", record("multi"))
	require.NoError(t, err)
	_, err = r.Subscribe(mustPattern(t, "graph.edge.added.v1"), "", record("unrelated"))
	require.NoError(t, err)

	require.NoError(t, r.Publish(context.Background(), buildRouterEvent(t, subj)))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, received["exact"])
	assert.Equal(t, 1, received["single"])
	assert.Equal(t, 1, received["multi"])
	assert.Equal(t, 0, received["unrelated"])
}

func TestQueueGroupCompetingConsumer(t *testing.T) {
	r := NewInProcessRouter()
	subj := kernel.Subject{"graph", "node", "added", "v1"}

	var mu sync.Mutex
	counts := make([]int, 3)
	for i := 0; i < 3; i++ {
		idx := i
		_, err := r.Subscribe(mustPattern(t, "graph.node.added.v1"), "workers", func(ctx context.Context, msg kernel.Msg) {
			mu.Lock()
			counts[idx]++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	for i := 0; i < 9; i++ {
		require.NoError(t, r.Publish(context.Background(), buildRouterEvent(t, subj)))
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	total := counts[0] + counts[1] + counts[2]
	assert.Equal(t, 9, total)
}

// TestQueueGroupPrefersMoreSpecificSubscription covers spec.md's tie-break
// rule: when a queue group's members subscribed at different specificity
// levels, every matching publish must go to the most specific member, not
// round-robin across the whole group.
func TestQueueGroupPrefersMoreSpecificSubscription(t *testing.T) {
	r := NewInProcessRouter()
	subj := kernel.Subject{"graph", "node", "added", "v1"}

	var mu sync.Mutex
	var exactHits, wildcardHits int
	_, err := r.Subscribe(mustPattern(t, "graph.node.added.v1"), "workers", func(ctx context.Context, msg kernel.Msg) {
		mu.Lock()
		exactHits++
		mu.Unlock()
	})
	require.NoError(t, err)
	_, err = r.Subscribe(mustPattern(t, "graph.node.>"), "workers", func(ctx context.Context, msg kernel.Msg) {
		mu.Lock()
		wildcardHits++
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Publish(context.Background(), buildRouterEvent(t, subj)))
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, exactHits)
	assert.Equal(t, 0, wildcardHits)
}

func TestRequestTimeout(t *testing.T) {
	r := NewInProcessRouter()
	subj := kernel.Subject{"graph", "query", "state", "v1"}
	msg := buildRouterEvent(t, subj)

	_, err := r.Request(context.Background(), msg, 20*time.Millisecond)
	require.Error(t, err)
}

func TestRequestReply(t *testing.T) {
	r := NewInProcessRouter()
	subj := kernel.Subject{"graph", "query", "state", "v1"}

	_, err := r.Subscribe(mustPattern(t, "graph.query.state.v1"), "", func(ctx context.Context, msg kernel.Msg) {
		owner := msg.OwnerID
		reply, buildErr := kernel.BuildEvent(
			kernel.Subject{"graph", "query", "reply", "v1"},
			[]byte("reply"), owner,
			kernel.Options{Correlation: msg.CorrelationID, Causation: msg.ID},
		)
		if buildErr == nil {
			_ = r.Publish(ctx, reply)
		}
	})
	require.NoError(t, err)

	msg := buildRouterEvent(t, subj)
	reply, err := r.Request(context.Background(), msg, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, reply.CausationID)
}
