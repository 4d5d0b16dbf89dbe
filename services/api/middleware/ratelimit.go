package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/codeheim/taskpulse/internal/redis"
	"github.com/codeheim/taskpulse/pkg/telemetry"
)

// RateLimit rejects callers that exceed the injected limiter's window with
// 429. The limiter state lives in Redis, so the limit holds across API
// replicas. A limiter infrastructure error fails open: throttling is
// protection, not a correctness guarantee, and a Redis blip should not take
// the write path down with it.
func RateLimit(limiter redis.RateLimiter, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, ok := CallerFrom(r.Context())
			if !ok {
				clientID = r.RemoteAddr
			}

			allowed, err := limiter.Allow(r.Context(), clientID)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				telemetry.APIRateLimitedTotal.Inc()
				w.Header().Set("Retry-After", retryAfter)
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
