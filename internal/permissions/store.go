package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorchat/parlor/internal/db"
)

var _ Store = (*PgStore)(nil)

// PgStore answers role and grant lookups from PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) UserRoles(ctx context.Context, userID string) ([]string, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("permissions pool not configured")
	}
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	var roles []string
	err = s.pool.QueryRow(ctx, `SELECT roles FROM users WHERE id = $1`, pgID).Scan(&roles)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *PgStore) RoomRoles(ctx context.Context, userID, roomID string) ([]string, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("permissions pool not configured")
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return nil, err
	}
	var roles []string
	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(roles, '{}') FROM subscriptions WHERE room_id = $1 AND user_id = $2`,
		pgRoomID, pgUserID,
	).Scan(&roles)
	return rolesOrEmpty(roles, err)
}

// rolesOrEmpty treats a missing subscription row as the empty role set and
// propagates every other error.
func rolesOrEmpty(roles []string, err error) ([]string, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *PgStore) Granted(ctx context.Context, permission string, roles []string) (bool, error) {
	if s.pool == nil {
		return false, fmt.Errorf("permissions pool not configured")
	}
	var granted bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM permission_grants
			WHERE permission = $1 AND role = ANY($2::text[]))`,
		permission, roles,
	).Scan(&granted)
	return granted, err
}

func (s *PgStore) IsSubscribed(ctx context.Context, roomID, userID string) (bool, error) {
	if s.pool == nil {
		return false, fmt.Errorf("permissions pool not configured")
	}
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return false, err
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return false, err
	}
	var subscribed bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE room_id = $1 AND user_id = $2)`,
		pgRoomID, pgUserID,
	).Scan(&subscribed)
	return subscribed, err
}
