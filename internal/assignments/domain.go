// Package assignments is the directory of which user is responsible for
// which entry.
package assignments

import (
	"fmt"
	"time"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/httpx"
)

// Assignment ties one user to one entry.
type Assignment struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	entries.Entry
	AssignedBy int64     `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the assignment, user or entry does not exist.
	ErrNotFound = fmt.Errorf("assignments: not found: %w", httpx.ErrNotFound)
	// ErrInvalidUser is returned when the assignee id is missing.
	ErrInvalidUser = fmt.Errorf("assignments: user id required: %w", httpx.ErrValidation)
)
