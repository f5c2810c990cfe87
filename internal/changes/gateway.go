package changes

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
)

// WriteInput is an edit of a live entry.
type WriteInput struct {
	Entry          entries.Entry
	Data           map[string]any
	IdempotencyKey string
}

// WriteResult reports how an edit was handled. Exactly one of Applied or
// Change is meaningful: direct tiers fill Applied, edit_with_approval fills
// Change.
type WriteResult struct {
	Tier     rbac.Tier      `json:"tier"`
	Applied  []string       `json:"applied,omitempty"`
	Change   *PendingChange `json:"change,omitempty"`
	Replayed bool           `json:"-"`
}

// Deferred reports whether the edit was routed to review.
func (r WriteResult) Deferred() bool {
	return r.Change != nil
}

// Write resolves the actor's tier on the entry and either applies data to
// the live record or records it as a pending change with the current values
// of the same fields as original data.
func (s *Service) Write(ctx context.Context, actor rbac.Actor, in WriteInput) (WriteResult, error) {
	if err := in.Entry.Validate(); err != nil {
		return WriteResult{}, err
	}
	if in.Data == nil {
		return WriteResult{}, ErrMissingData
	}
	schema, err := entries.SchemaFor(in.Entry.Type)
	if err != nil {
		return WriteResult{}, err
	}
	if _, err := schema.Coerce(in.Data); err != nil {
		return WriteResult{}, err
	}
	tier, err := s.resolver.ResolveEditTier(ctx, actor, in.Entry)
	if err != nil {
		return WriteResult{}, err
	}

	if tier.Direct() {
		var res entries.Result
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			res, err = tx.ApplyDirect(ctx, in.Entry, in.Data)
			return err
		})
		if err != nil {
			return WriteResult{}, err
		}
		if !res.NoOp() {
			if s.metrics != nil {
				s.metrics.EntryWritten(string(in.Entry.Type))
			}
			s.recordWrite(ctx, actor.ID, in.Entry, tier, res.Columns)
		}
		return WriteResult{Tier: tier, Applied: res.Columns}, nil
	}

	original, err := s.repo.Snapshot(ctx, in.Entry, sortedKeys(in.Data))
	if err != nil {
		return WriteResult{}, err
	}
	submitted, err := s.submit(ctx, actor, SubmitInput{
		Entry:          in.Entry,
		ChangeData:     in.Data,
		OriginalData:   original,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Tier: tier, Change: &submitted.Change, Replayed: submitted.Replayed}, nil
}

// ResolveTier exposes the actor's tier on entry.
func (s *Service) ResolveTier(ctx context.Context, actor rbac.Actor, entry entries.Entry) (rbac.Tier, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}
	return s.resolver.ResolveEditTier(ctx, actor, entry)
}

func (s *Service) recordWrite(ctx context.Context, actorID int64, entry entries.Entry, tier rbac.Tier, columns []string) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditEntryUpdated,
		Entity:   string(entry.Type),
		EntityID: entry.String(),
		Meta:     map[string]any{"tier": string(tier), "fields": columns},
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", shared.AuditEntryUpdated), slog.Any("error", err))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

