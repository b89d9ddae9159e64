package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDedupWindow is the minimum producer-retry deduplication window
// required by spec.md §4.3 ("at least 2 minutes by message id").
const DefaultDedupWindow = 2 * time.Minute

// dedupWindow tracks recently-appended message ids per stream so a
// producer's retried Append (same Msg.ID) is recognized instead of
// double-appended. Entries older than the window are swept lazily on
// CheckAndRecord, which keeps the structure bounded without a background goroutine.
type dedupWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]map[uuid.UUID]time.Time
	now    func() time.Time
}

func newDedupWindow(window time.Duration) *dedupWindow {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &dedupWindow{
		window: window,
		seen:   make(map[string]map[uuid.UUID]time.Time),
		now:    time.Now,
	}
}

// Sweep proactively evicts every entry older than the window, across all
// streams. CheckAndRecord already sweeps its own stream's entries lazily
// on every call, so Sweep only matters for streams that have gone quiet —
// without it, a stream nobody appends to anymore keeps its last burst of
// message ids resident forever. Intended to be called periodically (see
// cmd/alchemist-core's cron-scheduled sweep job), not on every Append.
func (d *dedupWindow) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for stream, entries := range d.seen {
		for msgID, at := range entries {
			if now.Sub(at) > d.window {
				delete(entries, msgID)
			}
		}
		if len(entries) == 0 {
			delete(d.seen, stream)
		}
	}
}

// CheckAndRecord reports whether id was already recorded for stream within
// the window. If not, it records id at the current time and returns false.
func (d *dedupWindow) CheckAndRecord(stream string, id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	entries, ok := d.seen[stream]
	if !ok {
		entries = make(map[uuid.UUID]time.Time)
		d.seen[stream] = entries
	}
	for msgID, at := range entries {
		if now.Sub(at) > d.window {
			delete(entries, msgID)
		}
	}
	if at, ok := entries[id]; ok && now.Sub(at) <= d.window {
		return true
	}
	entries[id] = now
	return false
}
