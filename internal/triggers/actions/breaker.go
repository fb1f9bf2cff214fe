package actions

import (
	"sync"
	"time"
)

// breaker stops calling a webhook host that keeps failing. After threshold
// consecutive failures it opens for cooldown, then lets one trial call through.
type breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	openUntil time.Time
	isOpen    bool
}

func newBreaker(threshold int, cooldown time.Duration, now func() time.Time) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &breaker{threshold: threshold, cooldown: cooldown, now: now}
}

// allow reports whether a call may proceed. An expired open circuit moves to
// half-open: the next call is let through and its result decides.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return true
	}
	if b.now().After(b.openUntil) {
		b.isOpen = false
		// one more failure reopens it
		b.failures = b.threshold - 1
		return true
	}
	return false
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.isOpen = false
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.isOpen = true
		b.openUntil = b.now().Add(b.cooldown)
	}
}

func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOpen
}

// breakers keys one breaker per host.
type breakers struct {
	mu        sync.Mutex
	byHost    map[string]*breaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func newBreakers(threshold int, cooldown time.Duration, now func() time.Time) *breakers {
	return &breakers{
		byHost:    make(map[string]*breaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

func (bs *breakers) get(host string) *breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.byHost[host]
	if !ok {
		b = newBreaker(bs.threshold, bs.cooldown, bs.now)
		bs.byHost[host] = b
	}
	return b
}
