// Package cache defines the expiring key-value contract used for short-lived
// state such as captcha challenges and rate limit windows.
package cache

import (
	"context"
	"time"
)

// WindowResult describes a sliding window after IncrementCounterWindow.
type WindowResult struct {
	Allowed bool
	// Count of events inside the window, including this one when allowed.
	Count int
	// Oldest event still inside the window. Zero when the window is empty.
	Oldest time.Time
}

// ExpiringStore abstracts ephemeral state. Implementations must make Delete
// and Incr atomic so that callers can use them as single-winner primitives.
type ExpiringStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether a live key was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Incr increments a counter, setting ttl when the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// IncrementCounterWindow records an event at now unless limit events
	// already fall inside (now-window, now]. Rejected events are not recorded.
	IncrementCounterWindow(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (WindowResult, error)
}

// Sweeper is implemented by stores that reclaim expired entries explicitly.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
