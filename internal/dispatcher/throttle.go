package dispatcher

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle caps how many messages are sent per minute, on top of the fixed
// inter-send delay. A nil Throttle never blocks.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a throttle allowing perMinute sends per minute, evenly
// spaced. perMinute <= 0 returns nil (unlimited).
func NewThrottle(perMinute int) *Throttle {
	if perMinute <= 0 {
		return nil
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Wait blocks until the next send is allowed.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
