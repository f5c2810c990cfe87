package changes

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/httpx"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
)

// Handler exposes the pending-change workflow and the entry write gateway.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	reviewLimit int
}

// NewHandler constructs a Handler. reviewLimit caps review calls per client
// and minute; zero disables the cap.
func NewHandler(logger *slog.Logger, service *Service, reviewLimit int) *Handler {
	return &Handler{logger: logger, service: service, reviewLimit: reviewLimit}
}

// MountRoutes registers change and entry routes on the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries/{type}/{id}/tier", h.tier)
	r.Patch("/entries/{type}/{id}", h.write)

	r.Route("/changes", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/", h.list)
		r.Get("/mine", h.mine)
		r.Get("/{changeID}", h.get)
		r.Get("/{changeID}/diff", h.preview)
		var limits []func(http.Handler) http.Handler
		if h.reviewLimit > 0 {
			limits = append(limits, httprate.LimitByIP(h.reviewLimit, time.Minute))
		}
		r.With(limits...).Post("/{changeID}/review", h.review)
	})
}

type submitRequest struct {
	EntryType    string         `json:"entry_type" validate:"required"`
	EntryID      int64          `json:"entry_id" validate:"required,gt=0"`
	ChangeData   map[string]any `json:"change_data" validate:"required"`
	OriginalData map[string]any `json:"original_data" validate:"required"`
}

type reviewRequest struct {
	Status string  `json:"status" validate:"required,oneof=approved rejected"`
	Notes  *string `json:"notes"`
}

type listResponse struct {
	Changes    []PendingChange   `json:"changes"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entryType, err := entries.ParseEntryType(req.EntryType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Submit(r.Context(), actor, SubmitInput{
		Entry:          entries.Entry{Type: entryType, ID: req.EntryID},
		ChangeData:     req.ChangeData,
		OriginalData:   req.OriginalData,
		IdempotencyKey: key,
	})
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, res.Change)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, page, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Changes: nonNil(items), Pagination: page})
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	status, err := ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.ParsePage(r.URL.Query())
	items, pagination, err := h.service.Mine(r.Context(), actor, status, page, perPage)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Changes: nonNil(items), Pagination: pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := changeID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := changeID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Preview(r.Context(), actor, id)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := changeID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Review(r.Context(), actor, id, ReviewInput{Status: Status(req.Status), Notes: req.Notes})
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) tier(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	entry, err := entries.ParseEntry(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tier, err := h.service.ResolveTier(r.Context(), actor, entry)
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entry": entry, "tier": tier, "direct": tier.Direct()})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	entry, err := entries.ParseEntry(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var data map[string]any
	if err := httpx.DecodeJSON(r, &data); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Write(r.Context(), actor, WriteInput{Entry: entry, Data: data, IdempotencyKey: key})
	if err != nil {
		httpx.LogAndRespond(h.logger, w, r, err)
		return
	}
	status := http.StatusOK
	if res.Deferred() && !res.Replayed {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
	}
	return actor, ok
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var f Filter
	switch raw := strings.TrimSpace(q.Get("status")); strings.ToLower(raw) {
	case "all":
		f.AnyStatus = true
	default:
		status, err := ParseStatus(raw)
		if err != nil {
			return Filter{}, err
		}
		f.Status = status
	}
	if raw := q.Get("entry_type"); raw != "" {
		t, err := entries.ParseEntryType(raw)
		if err != nil {
			return Filter{}, err
		}
		f.EntryType = t
	}
	var err error
	if f.EntryID, err = positiveParam(q.Get("entry_id")); err != nil {
		return Filter{}, err
	}
	if f.UserID, err = positiveParam(q.Get("user_id")); err != nil {
		return Filter{}, err
	}
	f.Page, f.PerPage = shared.ParsePage(q)
	return f, nil
}

func positiveParam(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, entries.ErrInvalidID
	}
	return v, nil
}

func changeID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "changeID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrNotFound
	}
	return id, nil
}

// idempotencyKey reads the optional Idempotency-Key header, which must be a UUID.
func idempotencyKey(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader))
	if raw == "" {
		return "", nil
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidIdempotencyKey
	}
	return key.String(), nil
}

func nonNil(list []PendingChange) []PendingChange {
	if list == nil {
		return []PendingChange{}
	}
	return list
}
