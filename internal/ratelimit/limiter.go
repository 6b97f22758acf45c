package ratelimit

import (
	"time"

	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/pkg/logger"
)

// Config holds the fixed-window parameters for one limiter instance.
// Authentication endpoints get a strict instance; general traffic a looser one.
type Config struct {
	Limit         int           // maximum requests per window
	Window        time.Duration // fixed window size
	BlockDuration time.Duration // how long a key stays blocked after tripping
}

// Limiter is a per-key fixed-window request counter with a block duration.
// Exceeding the limit is a normal outcome signaled by the boolean result,
// never an error.
type Limiter struct {
	store Store
	cfg   Config
	audit *logger.AuditLogger
}

// New creates a Limiter on top of the given store.
func New(store Store, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg}
}

// WithAudit makes the limiter emit an audit event each time a key trips the
// limit and enters its block period.
func (l *Limiter) WithAudit(audit *logger.AuditLogger) *Limiter {
	l.audit = audit
	return l
}

// Consume records a request for key and reports whether it is allowed.
func (l *Limiter) Consume(key string) bool {
	return l.consume(key, time.Now())
}

func (l *Limiter) consume(key string, now time.Time) bool {
	allowed := false
	tripped := false

	l.store.Update(key, func(entry *models.RateLimitEntry) *models.RateLimitEntry {
		// First request for the key, or the previous window (and any block)
		// has fully elapsed: start a fresh window.
		if entry == nil {
			allowed = true
			return &models.RateLimitEntry{Key: key, Count: 1, WindowStart: now}
		}

		if entry.IsBlocked(now) {
			return entry
		}

		if entry.BlockedUntil != nil || entry.WindowExpired(now, l.cfg.Window) {
			// Block period or window elapsed; reset.
			allowed = true
			return &models.RateLimitEntry{Key: key, Count: 1, WindowStart: now}
		}

		if entry.Count < l.cfg.Limit {
			entry.Count++
			allowed = true
			return entry
		}

		// Limit reached inside the window: start the block period.
		blockedUntil := now.Add(l.cfg.BlockDuration)
		entry.BlockedUntil = &blockedUntil
		tripped = true
		return entry
	})

	if tripped && l.audit != nil {
		l.audit.Emit(logger.AuditEvent{
			Type:    logger.EventRateLimitTrip,
			Key:     key,
			Outcome: "blocked",
			Metadata: map[string]string{
				"block_duration": l.cfg.BlockDuration.String(),
			},
		})
	}

	return allowed
}

// RetryAfter returns how long the key remains blocked, or zero when the key
// is not currently blocked.
func (l *Limiter) RetryAfter(key string) time.Duration {
	return l.retryAfter(key, time.Now())
}

func (l *Limiter) retryAfter(key string, now time.Time) time.Duration {
	entry := l.store.Get(key)
	if entry == nil || !entry.IsBlocked(now) {
		return 0
	}
	return entry.BlockedUntil.Sub(now)
}
