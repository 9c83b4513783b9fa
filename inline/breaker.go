package inline

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the relay while the
// breaker is open.
var ErrCircuitOpen = errors.New("inline: relay circuit open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker stops relay traffic after consecutive failures and lets a trial
// through once resetTimeout has passed.
type breaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	now          func() time.Time
}

func newBreaker(threshold int, resetTimeout time.Duration) *breaker {
	return &breaker{threshold: threshold, resetTimeout: resetTimeout, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		b.state = breakerHalfOpen
	}
	return b.state != breakerOpen
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = breakerClosed
		b.failures = 0
		return
	}
	b.lastFailure = b.now()
	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
	}
}
