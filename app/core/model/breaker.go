package model

import (
	"sync"
	"time"
)

// Breaker states.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half_open"
)

// Breaker isolates a failing upstream. After failureThreshold
// consecutive failures it opens and short-circuits calls until the
// cool-down elapses, then admits a limited number of probes; a probe
// success closes it, a probe failure re-opens it and restarts the
// cool-down.
type Breaker struct {
	mu               sync.Mutex
	state            string
	failureThreshold int
	cooldown         time.Duration
	maxProbes        int

	consecutiveFailures int
	openedAt            time.Time
	probesInFlight      int

	now func() time.Time
}

func NewBreaker(failureThreshold int, cooldown time.Duration, maxProbes int) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	if maxProbes <= 0 {
		maxProbes = 1
	}
	return &Breaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		maxProbes:        maxProbes,
		now:              time.Now,
	}
}

// Allow reports whether a call may go upstream right now, and whether
// the admission is a half-open probe. A true result must be paired with
// exactly one later Success, Failure or Release call.
func (b *Breaker) Allow() (ok, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true, false
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.state = BreakerHalfOpen
		b.probesInFlight = 0
		fallthrough
	case BreakerHalfOpen:
		if b.probesInFlight >= b.maxProbes {
			return false, false
		}
		b.probesInFlight++
		return true, true
	}
	return false, false
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.probesInFlight = 0
	}
}

// Release returns an admitted slot without recording an outcome, for
// calls that were aborted before reaching the upstream.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && b.probesInFlight > 0 {
		b.probesInFlight--
	}
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.probesInFlight = 0
		return
	}

	b.consecutiveFailures++
	if b.state == BreakerClosed && b.consecutiveFailures >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
