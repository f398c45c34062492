package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/portalauth"
)

// Authenticator resolves an access token. *portalauth.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*portalauth.Principal, error)
}

type principalContextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *portalauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by [Guard].
func PrincipalFromContext(ctx context.Context) (*portalauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*portalauth.Principal)
	return p, ok && p != nil
}

// Guard rejects requests without a usable bearer access token. Dependency
// failures answer 503 so clients can tell them apart from a bad token.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Access token required")
				return
			}

			principal, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, portalauth.ErrDependencyTimeout) || errors.Is(err, portalauth.ErrDependencyUnavailable) {
					WriteError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
					return
				}
				WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireVerified must run after [Guard].
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !principal.IsVerified {
			WriteJSON(w, http.StatusForbidden, Envelope{
				Success: false,
				Message: "Email verification required",
				Code:    "EMAIL_NOT_VERIFIED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
