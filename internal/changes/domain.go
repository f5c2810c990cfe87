// Package changes holds proposed edits that wait for a reviewer before they
// reach the live records.
package changes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/httpx"
)

// Status of a pending change. Transitions are one-way: pending to approved or
// pending to rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseStatus normalises raw. The empty string yields "".
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" || s.Valid() {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// PendingChange is a proposed edit of one entry.
type PendingChange struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	entries.Entry
	// ChangeData and OriginalData are nil when the stored record is unreadable.
	ChangeData   map[string]any `json:"change_data"`
	OriginalData map[string]any `json:"original_data"`
	Status       Status         `json:"status"`
	ReviewedBy   *int64         `json:"reviewed_by"`
	ReviewedAt   *time.Time     `json:"reviewed_at,omitempty"`
	ReviewNotes  *string        `json:"review_notes"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	rawChange json.RawMessage
}

// NewChange is the insert payload of a submission.
type NewChange struct {
	UserID       int64
	Entry        entries.Entry
	ChangeData   json.RawMessage
	OriginalData json.RawMessage
}

// Filter narrows listings. All set fields must match.
type Filter struct {
	// Status defaults to pending unless AnyStatus is set.
	Status    Status
	AnyStatus bool
	EntryType entries.EntryType
	EntryID   int64
	UserID    int64
	Page      int
	PerPage   int
}

func (f Filter) normalized() Filter {
	if f.Status == "" && !f.AnyStatus {
		f.Status = StatusPending
	}
	if f.Status != "" {
		f.AnyStatus = false
	}
	return f
}

var (
	// ErrNotFound indicates the change does not exist.
	ErrNotFound = fmt.Errorf("changes: not found: %w", httpx.ErrNotFound)
	// ErrInvalidStatus is returned for unknown statuses or review decisions.
	ErrInvalidStatus = fmt.Errorf("changes: invalid status: %w", httpx.ErrValidation)
	// ErrMissingData is returned when change_data or original_data is absent.
	ErrMissingData = fmt.Errorf("changes: change_data and original_data are required: %w", httpx.ErrValidation)
	// ErrDirectTier is returned when the actor edits the entry directly and
	// therefore must not submit a proposal.
	ErrDirectTier = fmt.Errorf("changes: actor edits this entry directly: %w", httpx.ErrValidation)
	// ErrInvalidIdempotencyKey is returned when the Idempotency-Key header is not a UUID.
	ErrInvalidIdempotencyKey = fmt.Errorf("changes: idempotency key must be a UUID: %w", httpx.ErrValidation)
	// ErrAlreadyReviewed is matched by every AlreadyReviewedError.
	ErrAlreadyReviewed = fmt.Errorf("changes: already reviewed: %w", httpx.ErrConflict)
)

// AlreadyReviewedError reports a review attempt on a change that left the
// pending state, together with its current status.
type AlreadyReviewedError struct {
	ChangeID int64
	Status   Status
}

func (e *AlreadyReviewedError) Error() string {
	return fmt.Sprintf("changes: change %d already reviewed (status %s)", e.ChangeID, e.Status)
}

// Unwrap exposes ErrAlreadyReviewed.
func (e *AlreadyReviewedError) Unwrap() error {
	return ErrAlreadyReviewed
}

// CurrentState implements httpx.StateCarrier.
func (e *AlreadyReviewedError) CurrentState() string {
	return string(e.Status)
}

// decodeLenient reads a stored record for display. Unreadable records are
// reported as nil.
func decodeLenient(raw []byte) (map[string]any, bool) {
	if raw == nil {
		return nil, false
	}
	data, err := entries.DecodeDiff(raw)
	if err != nil {
		return nil, false
	}
	return data, true
}
