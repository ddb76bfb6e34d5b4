package tool

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps outbound lookups across both tools: a bucket of limit
// calls that refills evenly over window.
type RateLimiter struct {
	bucket *rate.Limiter
	now    func() time.Time
}

// NewRateLimiter allows limit calls per window. A limit <= 0 disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 || window <= 0 {
		return &RateLimiter{now: time.Now}
	}
	return &RateLimiter{
		bucket: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		now:    time.Now,
	}
}

// Allow takes one call from the bucket. A nil limiter allows everything.
func (r *RateLimiter) Allow() bool {
	if r == nil || r.bucket == nil {
		return true
	}
	return r.bucket.AllowN(r.now(), 1)
}
