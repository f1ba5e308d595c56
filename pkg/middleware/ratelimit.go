package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit rejects requests above the shared limiter with 429. The limiter
// is global, not per client; it protects the planners and their upstream
// quotas rather than enforcing per-user fairness.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
