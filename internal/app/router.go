package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hotelcms/hotelcms/internal/assignments"
	audithttp "github.com/hotelcms/hotelcms/internal/audit/http"
	"github.com/hotelcms/hotelcms/internal/auth"
	"github.com/hotelcms/hotelcms/internal/changes"
	"github.com/hotelcms/hotelcms/internal/observability"
	"github.com/hotelcms/hotelcms/internal/platform/httpx"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
	"github.com/hotelcms/hotelcms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	Authenticator      *auth.Authenticator
	RBACMiddleware     rbac.Middleware
	ChangesHandler     *changes.Handler
	AssignmentsHandler *assignments.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with hotelcms defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.Authenticator.RequireActor)
		if params.ChangesHandler != nil {
			params.ChangesHandler.MountRoutes(r)
		}
		if params.AssignmentsHandler != nil {
			params.AssignmentsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.With(params.RBACMiddleware.RequireAll(rbac.Actor.IsAdmin)).Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
