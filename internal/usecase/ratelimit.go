package usecase

import (
	"sync"
	"time"

	"github.com/pixelhotel/messenger/pkg/clock"
)

// LimitConfig is the per-action window settings for the flat limiter.
type LimitConfig struct {
	Window   time.Duration
	MaxCount int
}

// LimitResult is the outcome of a single check. A denied check carries
// how long the caller has to wait before the oldest grant expires.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimiter is a flat sliding-window counter keyed by an action
// identifier (e.g. "chat_message:{userId}"). Keys are independent.
// A successful check consumes a slot immediately; the caller is expected
// to perform the action it checked for.
type RateLimiter interface {
	Check(key string, conf LimitConfig) LimitResult
}

type slidingWindowLimiter struct {
	mu     sync.Mutex
	clock  clock.Clock
	grants map[string][]time.Time
}

func NewRateLimiter(clk clock.Clock) RateLimiter {
	return &slidingWindowLimiter{
		clock:  clk,
		grants: make(map[string][]time.Time),
	}
}

func (l *slidingWindowLimiter) Check(key string, conf LimitConfig) LimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	window := l.grants[key]

	kept := window[:0]
	for _, t := range window {
		if now.Sub(t) < conf.Window {
			kept = append(kept, t)
		}
	}

	// The attempt itself counts against the cap: maxCount 5 means the
	// fifth inside a live window is the one denied.
	if len(kept)+1 >= conf.MaxCount {
		// With a cap of one (or less) the window is empty on every
		// denial; the caller still gets a full-window wait.
		retryAfter := conf.Window
		if len(kept) > 0 {
			retryAfter = conf.Window - now.Sub(kept[0])
		}
		l.grants[key] = kept
		return LimitResult{Allowed: false, RetryAfter: retryAfter}
	}

	l.grants[key] = append(kept, now)
	return LimitResult{Allowed: true}
}
