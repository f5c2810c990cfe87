package assignments

import (
	"context"
	"log/slog"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Upsert(ctx context.Context, userID int64, entry entries.Entry, assignedBy int64) (Assignment, error)
	Delete(ctx context.Context, userID int64, entry entries.Entry) error
	ListByUser(ctx context.Context, userID int64) ([]Assignment, error)
	ListByEntry(ctx context.Context, entry entries.Entry) ([]Assignment, error)
	IsAssigned(ctx context.Context, userID int64, entry entries.Entry) (bool, error)
}

// ExistencePort checks that an entry exists before it is referenced.
type ExistencePort interface {
	Ensure(ctx context.Context, entry entries.Entry) error
}

// Service manages the assignment directory.
type Service struct {
	repo      RepositoryPort
	existence ExistencePort
	audit     shared.Auditor
	logger    *slog.Logger
}

// NewService constructs the assignment service. existence and audit may be nil.
func NewService(repo RepositoryPort, existence ExistencePort, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, existence: existence, audit: audit, logger: logger}
}

// AssignInput describes an assign or unassign request.
type AssignInput struct {
	UserID int64
	Entry  entries.Entry
}

func (in AssignInput) validate() error {
	if in.UserID <= 0 {
		return ErrInvalidUser
	}
	return in.Entry.Validate()
}

// Assign makes in.UserID responsible for in.Entry. Re-assigning an existing
// pair records actor as the new assigner.
func (s *Service) Assign(ctx context.Context, actor rbac.Actor, in AssignInput) (Assignment, error) {
	if !rbac.CanAssign(actor) {
		return Assignment{}, rbac.ErrDenied
	}
	if err := in.validate(); err != nil {
		return Assignment{}, err
	}
	if s.existence != nil {
		if err := s.existence.Ensure(ctx, in.Entry); err != nil {
			return Assignment{}, err
		}
	}
	a, err := s.repo.Upsert(ctx, in.UserID, in.Entry, actor.ID)
	if err != nil {
		return Assignment{}, err
	}
	s.record(ctx, actor.ID, shared.AuditAssignmentSet, in)
	return a, nil
}

// Unassign removes the assignment of in.UserID to in.Entry.
func (s *Service) Unassign(ctx context.Context, actor rbac.Actor, in AssignInput) error {
	if !rbac.CanAssign(actor) {
		return rbac.ErrDenied
	}
	if err := in.validate(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, in.UserID, in.Entry); err != nil {
		return err
	}
	s.record(ctx, actor.ID, shared.AuditAssignmentRemove, in)
	return nil
}

// ListByUser returns the assignments of userID. Users may always list their
// own assignments.
func (s *Service) ListByUser(ctx context.Context, actor rbac.Actor, userID int64) ([]Assignment, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	if !actor.Active || (actor.ID != userID && !rbac.CanView(actor)) {
		return nil, rbac.ErrDenied
	}
	return s.repo.ListByUser(ctx, userID)
}

// ListByEntry returns the users assigned to entry.
func (s *Service) ListByEntry(ctx context.Context, actor rbac.Actor, entry entries.Entry) ([]Assignment, error) {
	if !rbac.CanView(actor) {
		return nil, rbac.ErrDenied
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListByEntry(ctx, entry)
}

// IsAssigned implements rbac.AssignmentChecker.
func (s *Service) IsAssigned(ctx context.Context, userID int64, entry entries.Entry) (bool, error) {
	return s.repo.IsAssigned(ctx, userID, entry)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, in AssignInput) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   string(in.Entry.Type),
		EntityID: in.Entry.String(),
		Meta:     map[string]any{"user_id": in.UserID},
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

var _ rbac.AssignmentChecker = (*Service)(nil)
