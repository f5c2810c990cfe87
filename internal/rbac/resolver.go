package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/hotelcms/hotelcms/internal/entries"
)

//go:generate go run go.uber.org/mock/mockgen@latest -source=resolver.go -destination=../mocks/resolver.go -package=mocks

// AssignmentChecker reports whether an actor is assigned to an entry.
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, actorID int64, entry entries.Entry) (bool, error)
}

// TierRecorder observes resolution outcomes.
type TierRecorder interface {
	TierResolved(outcome string)
}

type rule struct {
	tier   Tier
	perm   string
	scoped bool
}

// lattice is evaluated top to bottom and the first match wins. The Admin
// bypass precedes it.
var lattice = []rule{
	{tier: TierEditAll, perm: PermEditAll},
	{tier: TierEditWithApproval, perm: PermEditWithApproval},
	{tier: TierEditAssigned, perm: PermEditAssigned, scoped: true},
	{tier: TierEditWithApproval, perm: PermEditWithApproval, scoped: true},
}

// Resolver is the permission resolution engine.
type Resolver struct {
	assignments AssignmentChecker
	metrics     TierRecorder
}

// NewResolver constructs a Resolver. metrics may be nil.
func NewResolver(assignments AssignmentChecker, metrics TierRecorder) *Resolver {
	return &Resolver{assignments: assignments, metrics: metrics}
}

// ResolveEditTier returns the actor's effective edit tier on entry, or
// ErrDenied. A missing entry id is rejected before any lookup; lookup
// failures are returned unchanged.
func (r *Resolver) ResolveEditTier(ctx context.Context, actor Actor, entry entries.Entry) (Tier, error) {
	if entry.ID <= 0 {
		return "", ErrMissingEntry
	}
	tier, err := r.resolve(ctx, actor, entry)
	if r.metrics != nil {
		switch {
		case err == nil:
			r.metrics.TierResolved(string(tier))
		case errors.Is(err, ErrDenied):
			r.metrics.TierResolved("denied")
		}
	}
	return tier, err
}

func (r *Resolver) resolve(ctx context.Context, actor Actor, entry entries.Entry) (Tier, error) {
	if !actor.Active {
		return "", ErrDenied
	}
	if actor.IsAdmin() {
		return TierEditAll, nil
	}
	var assigned *bool
	for _, rl := range lattice {
		if !actor.Has(rl.perm) {
			continue
		}
		if !rl.scoped {
			return rl.tier, nil
		}
		if assigned == nil {
			ok, err := r.assignments.IsAssigned(ctx, actor.ID, entry)
			if err != nil {
				return "", fmt.Errorf("rbac: assignment lookup: %w", err)
			}
			assigned = &ok
		}
		if *assigned {
			return rl.tier, nil
		}
	}
	return "", ErrDenied
}

// CanView reports whether the actor may read entries and their assignments.
func CanView(actor Actor) bool {
	return allows(actor, PermViewEntries)
}

// CanApprove reports whether the actor may review pending changes.
func CanApprove(actor Actor) bool {
	return allows(actor, PermApproveChanges)
}

// CanAssign reports whether the actor may manage assignments.
func CanAssign(actor Actor) bool {
	return allows(actor, PermAssignEntries)
}

func allows(actor Actor, code string) bool {
	if !actor.Active {
		return false
	}
	return actor.IsAdmin() || actor.Has(code)
}
