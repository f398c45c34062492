package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth"
	"github.com/sirupsen/logrus"
)

type clientIPContextKey struct{}

// RequestContext records the client IP and User-Agent on the request context,
// both for this package and for the engine's audit events. With trustProxy
// set, the first X-Forwarded-For entry wins over RemoteAddr.
func RequestContext(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustProxy)

			ctx := context.WithValue(r.Context(), clientIPContextKey{}, ip)
			ctx = portalauth.WithClientIP(ctx, ip)
			ctx = portalauth.WithUserAgent(ctx, r.UserAgent())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the IP recorded by [RequestContext], or the host part of
// RemoteAddr when the middleware did not run.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPContextKey{}).(string); ok && ip != "" {
		return ip
	}
	return resolveClientIP(r, false)
}

func resolveClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging writes one entry per request.
func Logging(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(started).Milliseconds(),
				"ip":          ClientIP(r),
			})
			switch {
			case rec.status >= 500:
				entry.Error("request failed")
			case rec.status >= 400:
				entry.Info("request rejected")
			default:
				entry.Debug("request served")
			}
		})
	}
}
