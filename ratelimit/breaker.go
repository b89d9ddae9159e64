package ratelimit

import (
	"sync"
	"time"

	"github.com/arc-self/alchemist-core/alerr"
)

// CircuitState is the breaker's current state (spec.md §4.6).
type CircuitState int

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Closed"
	}
}

// BreakerConfig holds the failure/success thresholds and open-state
// timeout.
type BreakerConfig struct {
	FailureThreshold int           // F
	SuccessThreshold int           // S
	OpenTimeout      time.Duration // T
}

// Breaker wraps downstream calls with failure/success-counted state
// transitions: Closed --F consecutive failures--> Open --T elapses-->
// HalfOpen --S consecutive successes--> Closed (a single failure in
// HalfOpen returns to Open).
type Breaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
	probeInFlight   bool
	now             func() time.Time
}

// NewBreaker builds a Breaker starting Closed.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, state: Closed, now: time.Now}
}

// State returns the current state, advancing Open→HalfOpen if T has
// elapsed.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireOpen()
	return b.state
}

// maybeExpireOpen must be called with mu held.
func (b *Breaker) maybeExpireOpen() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.probeInFlight = false
		b.consecutiveOK = 0
	}
}

// Allow reports whether a call may proceed, reserving the single permitted
// probe when HalfOpen. Callers that are denied must not invoke the
// downstream call.
func (b *Breaker) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireOpen()

	switch b.state {
	case Closed:
		return true, nil
	case Open:
		return false, alerr.New(alerr.KindCircuitOpen, "ratelimit.Breaker.Allow")
	case HalfOpen:
		if b.probeInFlight {
			return false, alerr.New(alerr.KindCircuitOpen, "ratelimit.Breaker.Allow")
		}
		b.probeInFlight = true
		return true, nil
	}
	return false, alerr.New(alerr.KindCircuitOpen, "ratelimit.Breaker.Allow")
}

// RecordSuccess reports a successful call. In Closed it resets the
// failure counter; in HalfOpen it counts toward SuccessThreshold and
// closes the breaker once reached.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.consecutiveFail = 0
	case HalfOpen:
		b.probeInFlight = false
		b.consecutiveOK++
		if b.consecutiveOK >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consecutiveFail = 0
			b.consecutiveOK = 0
		}
	}
}

// RecordFailure reports a failed call. In Closed it counts toward
// FailureThreshold and opens the breaker once reached; in HalfOpen a
// single failure reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.FailureThreshold {
			b.open()
		}
	case HalfOpen:
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.openedAt = b.now()
	b.probeInFlight = false
	b.consecutiveFail = 0
	b.consecutiveOK = 0
}
