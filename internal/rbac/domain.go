package rbac

import (
	"fmt"
	"strings"

	"github.com/hotelcms/hotelcms/internal/platform/httpx"
)

// RoleAdmin bypasses every permission check.
const RoleAdmin = "Admin"

// Permission codes read from role membership.
const (
	PermEditAll          = "edit_all"
	PermEditWithApproval = "edit_with_approval"
	PermEditAssigned     = "edit_assigned"
	PermApproveChanges   = "approve_changes"
	PermAssignEntries    = "assign_entries"
	PermViewEntries      = "view_entries"
)

// Tier is the effective edit level of an actor on one entry.
type Tier string

// Edit tiers, from broadest to narrowest.
const (
	TierEditAll          Tier = "edit_all"
	TierEditWithApproval Tier = "edit_with_approval"
	TierEditAssigned     Tier = "edit_assigned"
)

// Direct reports whether the tier mutates live data immediately.
func (t Tier) Direct() bool {
	return t == TierEditAll || t == TierEditAssigned
}

var (
	// ErrDenied is returned when no tier applies. The message never names the
	// missing grant.
	ErrDenied = fmt.Errorf("rbac: %w", httpx.ErrForbidden)
	// ErrNotFound indicates the actor does not exist.
	ErrNotFound = fmt.Errorf("rbac: actor not found: %w", httpx.ErrNotFound)
	// ErrMissingEntry is returned before any lookup when no entry id is given.
	ErrMissingEntry = fmt.Errorf("rbac: entry id required: %w", httpx.ErrValidation)
)

// Grants is the permission set an actor holds through its roles.
type Grants struct {
	Admin       bool     `json:"admin"`
	Permissions []string `json:"permissions"`
}

// Actor is an authenticated identity together with its grants. It is passed
// by value into every resolver and store call.
type Actor struct {
	ID     int64  `json:"id"`
	Active bool   `json:"active"`
	Grants Grants `json:"grants"`
}

// Has reports whether the actor holds code through any role.
func (a Actor) Has(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, p := range a.Grants.Permissions {
		if strings.ToLower(p) == code {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds the Admin role.
func (a Actor) IsAdmin() bool {
	return a.Grants.Admin
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
