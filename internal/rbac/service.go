package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:generate go run go.uber.org/mock/mockgen@latest -source=service.go -destination=../mocks/service.go -package=mocks

// ActorSource loads an actor with its grants.
type ActorSource interface {
	LoadActor(ctx context.Context, id int64) (Actor, error)
}

// Service reads actors, roles and permissions. Role and permission rows are
// managed elsewhere; this package only reads them.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const loadActorSQL = `SELECT u.is_active,
       COALESCE(bool_or(r.name = $2), false) AS is_admin,
       COALESCE(array_agg(DISTINCT p.code) FILTER (WHERE p.code IS NOT NULL), '{}') AS codes
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE u.id = $1
GROUP BY u.id, u.is_active`

// LoadActor returns the actor's active flag, Admin membership and
// deduplicated permission codes.
func (s *Service) LoadActor(ctx context.Context, id int64) (Actor, error) {
	var (
		active bool
		admin  bool
		codes  []string
	)
	err := s.pool.QueryRow(ctx, loadActorSQL, id, RoleAdmin).Scan(&active, &admin, &codes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, err
	}
	return Actor{
		ID:     id,
		Active: active,
		Grants: Grants{Admin: admin, Permissions: normalizePermissions(codes)},
	}, nil
}

var _ ActorSource = (*Service)(nil)
