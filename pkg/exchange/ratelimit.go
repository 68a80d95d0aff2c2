package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter for venue API calls. Live gateways
// call Wait before every request so bursts never trip venue bans.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter allows roughly perSecond requests with the given burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a request slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}
