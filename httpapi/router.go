package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Limits holds the per-IP throttles applied to the public endpoints.
type Limits struct {
	Register             rate.Rule
	Login                rate.Rule
	RequestPasswordReset rate.Rule
	ResetPassword        rate.Rule
	ResendVerification   rate.Rule
}

// DefaultLimits returns the production throttles.
func DefaultLimits() Limits {
	return Limits{
		Register:             rate.Rule{Name: "register", Limit: 5, Window: 15 * time.Minute},
		Login:                rate.Rule{Name: "login", Limit: 10, Window: 15 * time.Minute},
		RequestPasswordReset: rate.Rule{Name: "password_reset_request", Limit: 3, Window: time.Hour},
		ResetPassword:        rate.Rule{Name: "password_reset", Limit: 5, Window: time.Hour},
		ResendVerification:   rate.Rule{Name: "resend_verification", Limit: 3, Window: time.Hour},
	}
}

// Options configures [NewRouter].
type Options struct {
	// Limiter enables the per-IP throttles. Nil disables them.
	Limiter middleware.RateLimiter
	Limits  Limits
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	Logger     logrus.FieldLogger
	// Health backs GET /healthz. Nil always reports healthy.
	Health func(ctx context.Context) error
}

type api struct {
	svc    Service
	logger logrus.FieldLogger
}

// NewRouter builds the /auth routes plus /healthz on a gorilla/mux router.
// Callers may add further routes (for example /metrics) to the result.
func NewRouter(svc Service, opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}

	a := &api{svc: svc, logger: logger}

	r := mux.NewRouter()
	r.Use(middleware.RequestContext(opts.TrustProxy), middleware.Logging(logger))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/healthz", healthHandler(opts.Health)).Methods(http.MethodGet)

	limit := func(rule rate.Rule, h http.HandlerFunc) http.Handler {
		return middleware.RateLimit(opts.Limiter, rule, logger, svc.NoteRateLimited)(h)
	}
	guard := middleware.Guard(svc)
	authed := func(h http.HandlerFunc) http.Handler {
		return guard(h)
	}
	verified := func(h http.HandlerFunc) http.Handler {
		return guard(middleware.RequireVerified(h))
	}

	auth := r.PathPrefix("/auth").Subrouter()
	auth.Handle("/register", limit(limits.Register, a.register)).Methods(http.MethodPost)
	auth.Handle("/login", limit(limits.Login, a.login)).Methods(http.MethodPost)
	auth.HandleFunc("/refresh-token", a.refresh).Methods(http.MethodPost)
	auth.HandleFunc("/verify-email", a.verifyEmail).Methods(http.MethodPost)
	auth.Handle("/resend-verification", limit(limits.ResendVerification, a.resendVerification)).Methods(http.MethodPost)
	auth.Handle("/request-password-reset", limit(limits.RequestPasswordReset, a.requestPasswordReset)).Methods(http.MethodPost)
	auth.Handle("/reset-password", limit(limits.ResetPassword, a.resetPassword)).Methods(http.MethodPost)

	auth.Handle("/logout", authed(a.logout)).Methods(http.MethodPost)
	auth.Handle("/logout-all", authed(a.logoutAll)).Methods(http.MethodPost)
	auth.Handle("/profile", authed(a.profile)).Methods(http.MethodGet)

	auth.Handle("/setup-2fa", verified(a.setupTwoFactor)).Methods(http.MethodPost)
	auth.Handle("/enable-2fa", verified(a.enableTwoFactor)).Methods(http.MethodPost)
	auth.Handle("/disable-2fa", verified(a.disableTwoFactor)).Methods(http.MethodPost)

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				middleware.WriteError(w, http.StatusServiceUnavailable, "unhealthy")
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "ok"})
	}
}
