package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PendingChange, error)
	List(ctx context.Context, filter Filter) ([]PendingChange, int, error)
	Snapshot(ctx context.Context, entry entries.Entry, keys []string) (map[string]any, error)
}

// TierResolver resolves an actor's edit tier on an entry.
type TierResolver interface {
	ResolveEditTier(ctx context.Context, actor rbac.Actor, entry entries.Entry) (rbac.Tier, error)
}

// ExistencePort checks that an entry exists before it is referenced.
type ExistencePort interface {
	Ensure(ctx context.Context, entry entries.Entry) error
}

// IdempotencyPort deduplicates client retries of a submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Resolve(ctx context.Context, key, module string) (int64, error)
	Delete(ctx context.Context, key, module string) error
}

// MetricsPort observes workflow events.
type MetricsPort interface {
	ChangeSubmitted(entryType string)
	ChangeReviewed(status string)
	EntryWritten(entryType string)
}

// Service implements the pending-change workflow.
type Service struct {
	repo        RepositoryPort
	resolver    TierResolver
	existence   ExistencePort
	idempotency IdempotencyPort
	audit       shared.Auditor
	metrics     MetricsPort
	logger      *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithExistence enables entry existence checks before submission.
func WithExistence(e ExistencePort) Option { return func(s *Service) { s.existence = e } }

// WithIdempotency enables Idempotency-Key handling on submission.
func WithIdempotency(i IdempotencyPort) Option { return func(s *Service) { s.idempotency = i } }

// WithAudit records workflow events in the audit trail.
func WithAudit(a shared.Auditor) Option { return func(s *Service) { s.audit = a } }

// WithMetrics observes workflow events.
func WithMetrics(m MetricsPort) Option { return func(s *Service) { s.metrics = m } }

// NewService constructs the pending-change service.
func NewService(repo RepositoryPort, resolver TierResolver, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, resolver: resolver, logger: logger, audit: shared.NopAuditor{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput describes a proposed edit.
type SubmitInput struct {
	Entry          entries.Entry
	ChangeData     map[string]any
	OriginalData   map[string]any
	IdempotencyKey string
}

// SubmitResult is the stored change. Replayed is set when an earlier request
// with the same idempotency key already created it.
type SubmitResult struct {
	Change   PendingChange
	Replayed bool
}

// Submit records a proposal. Only actors whose tier on the entry is
// edit_with_approval may submit; direct editors write through Write.
func (s *Service) Submit(ctx context.Context, actor rbac.Actor, in SubmitInput) (SubmitResult, error) {
	if err := validateSubmission(in); err != nil {
		return SubmitResult{}, err
	}
	tier, err := s.resolver.ResolveEditTier(ctx, actor, in.Entry)
	if err != nil {
		return SubmitResult{}, err
	}
	if tier != rbac.TierEditWithApproval {
		return SubmitResult{}, ErrDirectTier
	}
	return s.submit(ctx, actor, in)
}

func validateSubmission(in SubmitInput) error {
	if err := in.Entry.Validate(); err != nil {
		return err
	}
	if in.ChangeData == nil || in.OriginalData == nil {
		return ErrMissingData
	}
	schema, err := entries.SchemaFor(in.Entry.Type)
	if err != nil {
		return err
	}
	_, err = schema.Coerce(in.ChangeData)
	return err
}

func (s *Service) submit(ctx context.Context, actor rbac.Actor, in SubmitInput) (SubmitResult, error) {
	if s.existence != nil {
		if err := s.existence.Ensure(ctx, in.Entry); err != nil {
			return SubmitResult{}, err
		}
	}
	changeJSON, err := json.Marshal(in.ChangeData)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: change_data: %v", ErrMissingData, err)
	}
	originalJSON, err := json.Marshal(in.OriginalData)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: original_data: %v", ErrMissingData, err)
	}

	module := idempotencyModule(actor.ID)
	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, module); err != nil {
			if !errors.Is(err, shared.ErrIdempotencyConflict) {
				return SubmitResult{}, err
			}
			return s.replay(ctx, in.IdempotencyKey, module)
		}
	}

	bindKey := in.IdempotencyKey != "" && s.idempotency != nil
	var created PendingChange
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.Insert(ctx, NewChange{UserID: actor.ID, Entry: in.Entry, ChangeData: changeJSON, OriginalData: originalJSON})
		if err != nil {
			return err
		}
		if bindKey {
			if err := tx.BindIdempotencyKey(ctx, in.IdempotencyKey, module, c.ID); err != nil {
				return fmt.Errorf("bind idempotency key: %w", err)
			}
		}
		created = c
		return nil
	})
	if err != nil {
		if bindKey {
			if delErr := s.idempotency.Delete(ctx, in.IdempotencyKey, module); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return SubmitResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ChangeSubmitted(string(in.Entry.Type))
	}
	s.record(ctx, actor.ID, shared.AuditChangeSubmitted, created, map[string]any{"fields": sortedKeys(in.ChangeData)})
	return SubmitResult{Change: created}, nil
}

func (s *Service) replay(ctx context.Context, key, module string) (SubmitResult, error) {
	id, err := s.idempotency.Resolve(ctx, key, module)
	if err != nil {
		return SubmitResult{}, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Change: c, Replayed: true}, nil
}

// List returns changes matching filter. Reviewers and viewers only.
func (s *Service) List(ctx context.Context, actor rbac.Actor, filter Filter) ([]PendingChange, shared.Pagination, error) {
	if !rbac.CanApprove(actor) && !rbac.CanView(actor) {
		return nil, shared.Pagination{}, rbac.ErrDenied
	}
	return s.list(ctx, filter)
}

// Mine returns the actor's own submissions. An empty status lists all of them.
func (s *Service) Mine(ctx context.Context, actor rbac.Actor, status Status, page, perPage int) ([]PendingChange, shared.Pagination, error) {
	if !actor.Active {
		return nil, shared.Pagination{}, rbac.ErrDenied
	}
	return s.list(ctx, Filter{UserID: actor.ID, Status: status, AnyStatus: status == "", Page: page, PerPage: perPage})
}

func (s *Service) list(ctx context.Context, filter Filter) ([]PendingChange, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, ErrInvalidStatus
	}
	if filter.EntryType != "" && !filter.EntryType.Valid() {
		return nil, shared.Pagination{}, entries.ErrUnknownType
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = page.Page, page.PerPage
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// Get returns one change. The submitter, reviewers and viewers may read it.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (PendingChange, error) {
	if !actor.Active {
		return PendingChange{}, rbac.ErrDenied
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return PendingChange{}, err
	}
	if c.UserID != actor.ID && !rbac.CanApprove(actor) && !rbac.CanView(actor) {
		return PendingChange{}, rbac.ErrDenied
	}
	return c, nil
}

// ReviewInput is a reviewer decision.
type ReviewInput struct {
	Status Status
	Notes  *string
}

// Review approves or rejects a pending change. The status transition and, on
// approval, the write to the live record commit together or not at all.
func (s *Service) Review(ctx context.Context, actor rbac.Actor, id int64, in ReviewInput) (PendingChange, error) {
	if !rbac.CanApprove(actor) {
		return PendingChange{}, rbac.ErrDenied
	}
	if !in.Status.Terminal() {
		return PendingChange{}, ErrInvalidStatus
	}
	var (
		reviewed PendingChange
		applied  entries.Result
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.Transition(ctx, id, in.Status, actor.ID, in.Notes)
		if err != nil {
			return err
		}
		if in.Status == StatusApproved {
			res, err := tx.ApplyDiff(ctx, c.Entry, c.rawChange)
			if err != nil {
				return fmt.Errorf("changes: apply change %d: %w", id, err)
			}
			applied = res
		}
		reviewed = c
		return nil
	})
	if err != nil {
		return PendingChange{}, err
	}

	if s.metrics != nil {
		s.metrics.ChangeReviewed(string(in.Status))
	}
	action := shared.AuditChangeRejected
	meta := map[string]any{}
	if in.Status == StatusApproved {
		action = shared.AuditChangeApproved
		meta["fields"] = applied.Columns
	}
	s.record(ctx, actor.ID, action, reviewed, meta)
	return reviewed, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, c PendingChange, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["change_id"] = c.ID
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   string(c.Entry.Type),
		EntityID: c.Entry.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func idempotencyModule(actorID int64) string {
	return "changes.submit:" + strconv.FormatInt(actorID, 10)
}
