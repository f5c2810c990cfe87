package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/hotelcms/hotelcms/internal/platform/httpx"
	"github.com/hotelcms/hotelcms/internal/rbac"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// MountRoutes registers the audit timeline, entry history and CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit reached")
		}),
	)
	r.Get("/entries/{type}/{id}/history", h.handleHistory)
	r.Get("/audit", h.handleTimeline)
	r.With(limiter).Get("/audit/export.csv", h.handleExport)
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := rbac.ActorFromContext(r.Context()); ok && actor.ID > 0 {
		return "user:" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
