// Package ratelimit spaces out outbound requests.
package ratelimit

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// ErrStopped is returned by Wait once the limiter has been stopped.
var ErrStopped = errors.New("ratelimit: limiter stopped")

// Limiter allows one operation per interval, optionally delayed by a random
// jitter. The provider clients hold one per API key and each contact crawl
// holds its own. A nil *Limiter never blocks.
type Limiter struct {
	lim      *rate.Limiter
	jitter   float64 // 0.0 to 1.0
	interval time.Duration

	stopped context.Context
	stop    context.CancelFunc
}

// NewLimiter allows rps operations per second with the given jitter factor
// (clamped to 0.0..1.0). rps <= 0 disables limiting.
func NewLimiter(rps float64, jitter float64) *Limiter {
	stopped, stop := context.WithCancel(context.Background())
	l := &Limiter{stopped: stopped, stop: stop}
	if rps <= 0 {
		return l
	}

	l.jitter = min(max(jitter, 0), 1)
	l.interval = time.Duration(float64(time.Second) / rps)
	// burst 1: the first operation goes immediately, the rest are spaced
	l.lim = rate.NewLimiter(rate.Limit(rps), 1)
	return l
}

// Interval returns the spacing between operations (0 when unlimited).
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Wait blocks until the next operation may run, ctx is done or the limiter
// is stopped.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if l.stopped.Err() != nil {
		return ErrStopped
	}
	if l.lim == nil {
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unwatch := context.AfterFunc(l.stopped, cancel)
	defer unwatch()

	if err := l.lim.Wait(ctx); err != nil {
		return l.waitErr(ctx, err)
	}

	// only a positive draw delays; the limiter already enforces the spacing
	extra := time.Duration(float64(l.interval) * l.jitter * (rand.Float64()*2 - 1))
	if extra <= 0 {
		return nil
	}
	t := time.NewTimer(extra)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return l.waitErr(ctx, ctx.Err())
	}
}

func (l *Limiter) waitErr(ctx context.Context, err error) error {
	if l.stopped.Err() != nil {
		return ErrStopped
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Stop fails every pending and future Wait with ErrStopped.
func (l *Limiter) Stop() {
	if l != nil {
		l.stop()
	}
}
