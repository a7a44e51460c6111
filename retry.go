package cablelink

import (
	"sync"
	"time"
)

// retryPolicy schedules reconnect attempts on a fixed delay. At most one
// timer is pending at any instant; scheduling while one is pending is a
// no-op and the earlier timer governs. Pending state is cleared before the
// callback runs, so the callback may schedule again without being
// suppressed by its own timer.
type retryPolicy struct {
	delay time.Duration

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
}

func newRetryPolicy(delay time.Duration) *retryPolicy {
	return &retryPolicy{delay: delay}
}

// schedule arms the timer unless one is already pending.
func (p *retryPolicy) schedule(onFire func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending {
		return
	}
	p.pending = true
	p.timer = time.AfterFunc(p.delay, func() {
		p.mu.Lock()
		p.pending = false
		p.timer = nil
		p.mu.Unlock()

		onFire()
	})
}

// cancel stops a pending timer. No-op when none is pending.
func (p *retryPolicy) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = false
}
