package rbac

import (
	"log/slog"
	"net/http"

	"github.com/hotelcms/hotelcms/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects
// the authenticated actor to be on the request context.
type Middleware struct {
	Logger *slog.Logger
}

// Check is a capability predicate such as CanApprove.
type Check func(Actor) bool

// RequireAny ensures the current actor passes at least one check.
func (m Middleware) RequireAny(checks ...Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if len(checks) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, check := range checks {
				if check(actor) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied", slog.Int64("actor_id", actor.ID), slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, ErrDenied)
		})
	}
}

// RequireAll ensures the current actor passes every check.
func (m Middleware) RequireAll(checks ...Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, check := range checks {
				if !check(actor) {
					if m.Logger != nil {
						m.Logger.Info("rbac denied", slog.Int64("actor_id", actor.ID), slog.String("path", r.URL.Path))
					}
					httpx.RespondError(w, ErrDenied)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
