package models

import "time"

// RateLimitEntry tracks request counts for a single key (client IP or account
// identifier) within the current fixed window.
//
// Invariant: Count never exceeds the configured limit while BlockedUntil is
// unset. Once BlockedUntil is set every request for the key is rejected until
// that time passes, after which the entry resets.
type RateLimitEntry struct {
	Key          string
	Count        int
	WindowStart  time.Time
	BlockedUntil *time.Time
}

// IsBlocked reports whether the key is currently in a block period.
func (e *RateLimitEntry) IsBlocked(now time.Time) bool {
	return e.BlockedUntil != nil && now.Before(*e.BlockedUntil)
}

// WindowExpired reports whether the counting window has elapsed.
func (e *RateLimitEntry) WindowExpired(now time.Time, window time.Duration) bool {
	return now.Sub(e.WindowStart) >= window
}
