package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum spacing between consecutive request starts.
// The first Wait returns immediately; each later Wait blocks until Interval has passed
// since the previous one was granted, or ctx is done.
type Pacer struct {
	interval time.Duration
	lim      *rate.Limiter
}

// NewPacer returns a pacer with the given spacing. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	p := &Pacer{interval: interval}
	if interval > 0 {
		p.lim = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

func (p *Pacer) Interval() time.Duration { return p.interval }

// Wait blocks until the next request may start.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return ctx.Err()
	}
	return p.lim.Wait(ctx)
}
