package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/spigot/spigot/internal/core/engine"
)

// RateLimit gates a route class through the sliding-window limiter. Identity
// is the client IP; put chi's RealIP middleware ahead of this one so proxied
// requests resolve to the real client.
func RateLimit(limiter *engine.RateLimiter, routeClass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			decision := limiter.Allow(r.Context(), routeClass, ip, ip)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int64(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			envelope := errors.NewErrorEnvelope("RATE_LIMITED",
				fmt.Sprintf("too many requests, retry in %d seconds", retryAfter)).
				WithCorrelationID(GetRequestID(r.Context()))
			envelope, _ = envelope.WithContext(map[string]interface{}{
				"retry_after": retryAfter,
			})

			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			writeErrorResponse(w, envelope, http.StatusTooManyRequests)
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
