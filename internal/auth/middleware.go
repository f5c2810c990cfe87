package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hotelcms/hotelcms/internal/platform/httpx"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
)

// Authenticator resolves the session user to an rbac.Actor.
type Authenticator struct {
	actors rbac.ActorSource
	logger *slog.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(actors rbac.ActorSource, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{actors: actors, logger: logger}
}

// RequireActor rejects requests without an active actor and stores the actor
// in the request context otherwise.
func (a *Authenticator) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			httpx.RespondError(w, ErrUnauthenticated)
			return
		}
		userID, ok := sess.User()
		if !ok {
			httpx.RespondError(w, ErrUnauthenticated)
			return
		}
		actor, err := a.actors.LoadActor(r.Context(), userID)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				sess.SetUser(0)
				httpx.RespondError(w, ErrUnauthenticated)
				return
			}
			httpx.LogAndRespond(a.logger, w, r, err)
			return
		}
		if !actor.Active {
			a.logger.Info("inactive actor rejected", slog.Int64("user_id", userID))
			httpx.RespondError(w, ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithActor(r.Context(), actor)))
	})
}
