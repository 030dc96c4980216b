package api

import (
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// Defaults for per-sender inbound rate limiting.
const (
	// DefaultRatePerMinute is the sustained per-sender message budget.
	DefaultRatePerMinute = 30
	// DefaultRateBurst absorbs short bursts above the sustained rate.
	DefaultRateBurst = 10
)

// senderLimiter applies a token bucket per (integration, sender) pair so one
// noisy conversation cannot monopolize the pipeline for a whole tenant.
type senderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newSenderLimiter(perMinute, burst int) *senderLimiter {
	return &senderLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether another message from this sender may be processed
// now. Senders over budget are dropped, not delayed: the webhook has to be
// acknowledged quickly either way.
func (l *senderLimiter) Allow(integrationID int64, senderID string) bool {
	key := strconv.FormatInt(integrationID, 10) + "|" + senderID

	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
