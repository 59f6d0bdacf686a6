package invoke

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delayer waits before a retry. It returns ctx.Err() if ctx ends first.
type Delayer interface {
	Delay(ctx context.Context) error
}

// RandomDelay sleeps for a duration drawn uniformly from [Min, Max].
type RandomDelay struct {
	Min time.Duration
	Max time.Duration
}

// Duration draws the next backoff.
func (r RandomDelay) Duration() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int64N(int64(r.Max-r.Min)+1))
}

func (r RandomDelay) Delay(ctx context.Context) error {
	t := time.NewTimer(r.Duration())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoDelay retries immediately.
type NoDelay struct{}

func (NoDelay) Delay(ctx context.Context) error { return ctx.Err() }
