package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// GeneralRateLimit returns a coarse per-IP request limiter for the whole API
// surface. The fine-grained limits (per login IP, per passcode target, per
// challenge) live in the services; this one only sheds bulk traffic.
func GeneralRateLimit(requestLimit int, window time.Duration) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"Rate limit exceeded"}`))
		}),
	)
}
