// Package audithttp serves the audit trail over HTTP.
package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hotelcms/hotelcms/internal/audit"
	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/httpx"
	"github.com/hotelcms/hotelcms/internal/rbac"
)

const (
	maxPageSize      = 100
	defaultDateRange = 30 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	dateLayout       = "2006-01-02"
)

// TimelineService defines the reads the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves audit timeline requests.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler constructs an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// handleHistory lists the audit trail of one entry. Any viewer may read it.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, rbac.CanView) {
		return
	}
	entry, err := entries.ParseEntry(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := h.parseFilters(r, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters.Entity = string(entry.Type)
	filters.EntityID = entry.String()
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, rbac.CanApprove) {
		return
	}
	filters, err := h.parseFilters(r, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, rbac.CanApprove) {
		return
	}
	filters, err := h.parseFilters(r, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if errors.Is(err, audit.ErrExportTooLarge) {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Export Too Large", "narrow the date range or filters")
		return
	}
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	body, err := audit.WriteCSV(rows)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, check rbac.Check) bool {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return false
	}
	if !check(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return false
	}
	return true
}

// parseFilters reads the query string. Dates are inclusive calendar days in
// UTC. When bounded is set a missing range defaults to the last 30 days and
// wider ranges are rejected.
func (h *Handler) parseFilters(r *http.Request, bounded bool) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	var f audit.TimelineFilters

	to, err := parseDate(q.Get("to"), "to")
	if err != nil {
		return f, err
	}
	from, err := parseDate(q.Get("from"), "from")
	if err != nil {
		return f, err
	}
	if !to.IsZero() {
		to = to.Add(24 * time.Hour)
	}
	if bounded {
		if to.IsZero() {
			to = h.now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		}
		if from.IsZero() {
			from = to.Add(-defaultDateRange)
		}
		if to.Sub(from) > maxDateRange {
			return f, invalid("range", "at most 90 days")
		}
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return f, invalid("range", "from must not be after to")
	}
	f.From, f.To = from, to

	if raw := strings.TrimSpace(q.Get("actor_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, invalid("actor_id", "must be a positive integer")
		}
		f.ActorID = id
	}
	f.Entity = strings.ToLower(strings.TrimSpace(q.Get("entity")))
	f.Action = strings.TrimSpace(q.Get("action"))

	f.Page = 1
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page <= 0 {
			return f, invalid("page", "must be a positive integer")
		}
		f.Page = page
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return f, invalid("page_size", "must be a positive integer")
		}
		f.PageSize = min(size, maxPageSize)
	}
	return f, nil
}

func parseDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, invalid(field, "expected YYYY-MM-DD")
	}
	return t, nil
}

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", httpx.ErrValidation, field, reason)
}
