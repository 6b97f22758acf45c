package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs   int // base delay in milliseconds
	RandomDelayMs int // random jitter range in milliseconds
}

// TimingDelay equalizes response times of failed authentication paths, so an
// attacker cannot distinguish "account not found" from "wrong password".
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// WaitFrom sleeps until at least baseDelay+jitter has elapsed since startTime.
// Called only on failure paths; successful logins return at natural speed.
func (td *TimingDelay) WaitFrom(startTime time.Time) {
	target := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		target += time.Duration(cryptoRandIntn(td.config.RandomDelayMs)) * time.Millisecond
	}

	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}

// cryptoRandIntn returns a random number in [0, max) from a secure source.
// Falls back to 0 when the random source fails; the base delay still applies.
func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max))
}
