package assignments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/httpx"
	"github.com/hotelcms/hotelcms/internal/rbac"
)

// Handler exposes the assignment directory over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers assignment routes on the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/assignments", h.assign)
	r.Delete("/assignments", h.unassign)
	r.Get("/users/{id}/assignments", h.listByUser)
	r.Get("/entries/{type}/{id}/assignments", h.listByEntry)
}

type assignRequest struct {
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	EntryType string `json:"entry_type" validate:"required"`
	EntryID   int64  `json:"entry_id" validate:"required,gt=0"`
}

func (req assignRequest) input() (AssignInput, error) {
	if err := httpx.Validate(req); err != nil {
		return AssignInput{}, err
	}
	t, err := entries.ParseEntryType(req.EntryType)
	if err != nil {
		return AssignInput{}, err
	}
	return AssignInput{UserID: req.UserID, Entry: entries.Entry{Type: t, ID: req.EntryID}}, nil
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Assign(r.Context(), actor, in)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Unassign(r.Context(), actor, in); err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listByUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, ErrInvalidUser)
		return
	}
	list, err := h.service.ListByUser(r.Context(), actor, userID)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": nonNil(list)})
}

func (h *Handler) listByEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	entry, err := entries.ParseEntry(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListByEntry(r.Context(), actor, entry)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": nonNil(list)})
}

func nonNil(list []Assignment) []Assignment {
	if list == nil {
		return []Assignment{}
	}
	return list
}
