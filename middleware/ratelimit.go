package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/sirupsen/logrus"
)

// RateLimiter counts hits against a rule. *rate.Limiter implements it.
type RateLimiter interface {
	Allow(ctx context.Context, rule rate.Rule, subject string) (rate.Decision, error)
}

// RateLimit throttles the wrapped handler per client IP under rule. When the
// limiter itself fails the request is let through and the failure logged.
// notify, if set, is told about every rejected request.
func RateLimit(limiter RateLimiter, rule rate.Rule, logger logrus.FieldLogger, notify func(ctx context.Context, scope string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			decision, err := limiter.Allow(r.Context(), rule, ip)
			if err != nil {
				if logger != nil {
					logger.WithFields(logrus.Fields{
						"rule": rule.Name,
						"ip":   ip,
					}).WithError(err).Warn("rate limiter unavailable, allowing request")
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			if !decision.Allowed {
				if notify != nil {
					notify(r.Context(), rule.Name)
				}
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Remaining", "0")
				WriteJSON(w, http.StatusTooManyRequests, Envelope{
					Success:    false,
					Message:    "Too many attempts, please try again later",
					RetryAfter: retryAfter,
				})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
