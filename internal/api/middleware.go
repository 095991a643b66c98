// Package api implements the raido REST API using chi.
package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/auth"
	"github.com/starford/raido/internal/ratelimit"
)

// Authenticate verifies the Bearer token when one is present and stores
// the resulting actor on the request context. Requests without an
// Authorization header continue anonymously; a header that fails
// verification is rejected outright, never downgraded to anonymous.
func Authenticate(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, err := auth.BearerToken(header)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			actor, err := verifier.VerifyToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// RequireAuth rejects requests that carry no authenticated actor.
// It sits behind Authenticate, which did the actual verification.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.ActorFrom(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit enforces the per-identity quota and stamps the quota headers
// on every response that passes through it.
func RateLimit(l ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Allow(r.Context(), clientIdentity(r))
			setRateHeaders(w, res.Limit, res.Remaining, res.Reset)
			if !res.Allowed {
				writeError(w, &apperr.RateLimitError{Limit: res.Limit, Remaining: res.Remaining, Reset: res.Reset})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentity keys the limiter: the authenticated user when there is
// one, the remote host otherwise.
func clientIdentity(r *http.Request) string {
	if actor, ok := auth.ActorFrom(r.Context()); ok {
		return actor.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateHeaders(w http.ResponseWriter, limit, remaining int, reset time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}
