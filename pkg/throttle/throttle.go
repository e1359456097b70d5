// Package throttle holds the request pacing policies used by the scrapers:
// a jittered delay before each page, user-agent rotation, and an optional
// limiter shared by every search against the same platform.
package throttle

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// DelayFunc returns how long to wait before the next request.
type DelayFunc func() time.Duration

// AgentFunc returns the User-Agent header for the next request.
type AgentFunc func() string

var DesktopAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// UniformDelay draws uniformly from [min, max].
func UniformDelay(min, max time.Duration) DelayFunc {
	if max < min {
		min, max = max, min
	}
	return func() time.Duration {
		if max == min {
			return min
		}
		return min + rand.N(max-min+1)
	}
}

func NoDelay() DelayFunc {
	return func() time.Duration { return 0 }
}

// RandomAgent picks from pool on every call. An empty pool falls back to
// DesktopAgents.
func RandomAgent(pool []string) AgentFunc {
	if len(pool) == 0 {
		pool = DesktopAgents
	}
	return func() string {
		return pool[rand.IntN(len(pool))]
	}
}

func FixedAgent(ua string) AgentFunc {
	return func() string { return ua }
}

// PerMinute returns a limiter allowing n requests a minute with no burst, or
// nil when n is not positive.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
}

// Pacer combines the per-request jitter with the shared limiter.
type Pacer struct {
	Delay   DelayFunc
	Limiter *rate.Limiter
}

// Wait sleeps the jittered delay, then waits for a limiter token.
func (p Pacer) Wait(ctx context.Context) error {
	if p.Delay != nil {
		if d := p.Delay(); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	if p.Limiter != nil {
		return p.Limiter.Wait(ctx)
	}
	return nil
}
