// Package ratelimit paces control-channel commands with a token bucket.
//
// Recursive operations such as a directory size computation send one
// command per file. Pacing them keeps long runs from tripping flood
// protection on the server.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter hands out one token per command. The bucket holds at most one
// second worth of tokens (and never less than one), so short bursts go
// through immediately while the long-run average stays at the rate.
type Limiter struct {
	rate   float64 // tokens per second
	burst  float64 // bucket capacity
	tokens float64 // may go negative: waiters reserve future tokens
	last   time.Time
	mu     sync.Mutex

	now   func() time.Time
	sleep func(time.Duration)
}

// New returns a limiter allowing perSecond commands per second.
// A rate of zero or less means unlimited and returns nil; a nil *Limiter
// is valid and never blocks.
func New(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return nil
	}

	burst := max(perSecond, 1)
	return &Limiter{
		rate:   perSecond,
		burst:  burst,
		tokens: burst,
		last:   time.Now(),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Wait blocks until a command may be sent.
func (l *Limiter) Wait() {
	if l == nil {
		return
	}
	if d := l.reserve(); d > 0 {
		l.sleep(d)
	}
}

// reserve takes one token and returns how long the caller has to wait for
// it to become valid.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens = min(l.burst, l.tokens+now.Sub(l.last).Seconds()*l.rate)
	l.last = now

	l.tokens--
	if l.tokens >= 0 {
		return 0
	}
	return time.Duration(-l.tokens / l.rate * float64(time.Second))
}

// Rate returns the configured commands per second, or 0 for a nil limiter.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return l.rate
}
