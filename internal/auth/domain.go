// Package auth binds an authenticated user to the request session and turns
// that session into an rbac.Actor for downstream handlers.
package auth

import (
	"fmt"
	"time"

	"github.com/hotelcms/hotelcms/internal/platform/httpx"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = fmt.Errorf("auth: user not found: %w", httpx.ErrNotFound)
	// ErrUnauthenticated indicates the request carries no usable identity.
	ErrUnauthenticated = fmt.Errorf("auth: authentication required: %w", httpx.ErrUnauthorized)
)
