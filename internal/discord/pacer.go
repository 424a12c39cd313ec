package discord

import (
	"context"
	"sync"
	"time"
)

// Pacer serializes outbound REST calls so that consecutive requests are at
// least one interval apart, process-wide. The platform quota is global, so
// the spacing must be too.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewPacer creates a pacer with the given minimum spacing between calls.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Await blocks until the next request slot is available or the context is
// done. Each successful return reserves one slot.
func (p *Pacer) Await(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	wait := p.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	p.next = now.Add(wait + p.interval)
	p.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Penalize pushes the next slot out by the given duration, used after the
// platform returns an explicit retry-after.
func (p *Pacer) Penalize(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := time.Now().Add(d)
	if deadline.After(p.next) {
		p.next = deadline
	}
}
