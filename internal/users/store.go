package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorchat/parlor/internal/db"
)

var _ Store = (*PgStore)(nil)

// PgStore persists accounts in PostgreSQL.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPgStore(log *slog.Logger, pool *pgxpool.Pool) *PgStore {
	if log == nil {
		log = slog.Default()
	}
	return &PgStore{
		pool:   pool,
		logger: log.With(slog.String("service", "users_store")),
	}
}

const userColumns = `u.id, u.username, COALESCE(u.name, ''), COALESCE(u.email, ''),
	u.status, COALESCE(u.extension, ''), COALESCE(u.roles, '{}'), u.is_active,
	u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		user      User
	)
	err := row.Scan(&id, &user.Username, &user.Name, &user.Email,
		&user.Status, &user.Extension, &user.Roles, &user.Active,
		&createdAt, &updatedAt)
	if err != nil {
		return User{}, err
	}
	user.ID = db.UUIDString(id)
	user.CreatedAt = db.TimeFromPg(createdAt)
	user.UpdatedAt = db.TimeFromPg(updatedAt)
	return user, nil
}

func (s *PgStore) User(ctx context.Context, id string) (User, bool, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return User{}, false, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`, pgID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

func (s *PgStore) UserByUsername(ctx context.Context, username string) (User, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE lower(u.username) = lower($1)`,
		strings.TrimSpace(username))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

func (s *PgStore) EmailInUse(ctx context.Context, email, omitUserID string) (bool, error) {
	pgOmit, err := db.ParseUUID(omitUserID)
	if err != nil {
		return false, err
	}
	var taken bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2
		 )`,
		strings.TrimSpace(email), pgOmit).Scan(&taken)
	return taken, err
}

func (s *PgStore) UpdateEmail(ctx context.Context, userID, email string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE users SET email = $2, updated_at = now() WHERE id = $1`,
		pgID, email)
	return err
}

func (s *PgStore) DeleteUser(ctx context.Context, userID string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, pgID)
	return err
}

func (s *PgStore) SoleOwnedRooms(ctx context.Context, userID string) ([]string, error) {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(r.fname, r.name, r.id::text)
		 FROM rooms r
		 JOIN subscriptions own ON own.room_id = r.id
		 WHERE own.user_id = $1
		   AND 'owner' = ANY(own.roles)
		   AND NOT EXISTS (
		     SELECT 1 FROM subscriptions other
		     WHERE other.room_id = r.id
		       AND other.user_id <> $1
		       AND 'owner' = ANY(other.roles)
		   )`,
		pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PgStore) RelinquishOwnerships(ctx context.Context, userID string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	// Rooms where nobody else is subscribed disappear with the account.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM rooms r
		 WHERE EXISTS (
		   SELECT 1 FROM subscriptions own
		   WHERE own.room_id = r.id AND own.user_id = $1 AND 'owner' = ANY(own.roles)
		 )
		 AND NOT EXISTS (
		   SELECT 1 FROM subscriptions other
		   WHERE other.room_id = r.id AND other.user_id <> $1
		 )`,
		pgID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE subscriptions SET roles = array_remove(roles, 'owner') WHERE user_id = $1`,
		pgID)
	return err
}

func (s *PgStore) DeleteUserMessages(ctx context.Context, userID string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM messages WHERE user_id = $1`, pgID)
	return err
}

func (s *PgStore) ReassignMessages(ctx context.Context, userID, toUserID, toUsername string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	pgToID, err := db.ParseUUID(toUserID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE messages SET user_id = $2, username = $3 WHERE user_id = $1`,
		pgID, pgToID, toUsername)
	return err
}

func (s *PgStore) DeleteDirectRooms(ctx context.Context, userID string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`DELETE FROM rooms WHERE kind = 'd' AND $1 = ANY(participant_ids)`, pgID)
	return err
}

func (s *PgStore) RemoveSubscriptions(ctx context.Context, userID string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1`, pgID)
	return err
}

// CountUsers returns the total number of accounts.
func (s *PgStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateUser inserts a new account. Roles default to the plain user role.
func (s *PgStore) CreateUser(ctx context.Context, username, email, passwordHash string, roles []string) (User, error) {
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, roles)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
		 RETURNING id, username, COALESCE(name, ''), COALESCE(email, ''),
		           status, COALESCE(extension, ''), COALESCE(roles, '{}'), is_active,
		           created_at, updated_at`,
		strings.TrimSpace(username), strings.TrimSpace(email), passwordHash, roles)
	return scanUser(row)
}

// ExtensionForUser resolves the VoIP extension assigned to userID.
func (s *PgStore) ExtensionForUser(ctx context.Context, userID string) (string, bool, error) {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return "", false, err
	}
	var extension pgtype.Text
	err = s.pool.QueryRow(ctx,
		`SELECT extension FROM users WHERE id = $1`, pgID).Scan(&extension)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value := db.TextToString(extension)
	return value, value != "", nil
}

func (s *PgStore) RequeueInquiries(ctx context.Context, userID string) error {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE inquiries i
		 SET status = 'queued', queued_at = now()
		 FROM subscriptions sub
		 WHERE sub.room_id = i.room_id
		   AND sub.user_id = $1
		   AND i.status = 'taken'`,
		pgID)
	return err
}
