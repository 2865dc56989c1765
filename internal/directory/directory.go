// Package directory implements the spotlight user lookup view on PostgreSQL.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorchat/parlor/internal/db"
	"github.com/parlorchat/parlor/internal/spotlight"
)

var _ spotlight.Directory = (*Store)(nil)

// Store answers spotlight user lookups from the users and subscriptions tables.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "directory")),
	}
}

const candidateColumns = "u.id, u.username, COALESCE(u.name, ''), u.status, COALESCE(u.avatar_etag, '')"

func scanCandidate(row pgx.Row) (spotlight.Candidate, error) {
	var (
		id pgtype.UUID
		c  spotlight.Candidate
	)
	if err := row.Scan(&id, &c.Username, &c.Name, &c.Status, &c.AvatarETag); err != nil {
		return spotlight.Candidate{}, err
	}
	c.ID = db.UUIDString(id)
	return c, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (spotlight.Candidate, bool, error) {
	if s.pool == nil {
		return spotlight.Candidate{}, false, fmt.Errorf("directory pool not configured")
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+`
		 FROM users u
		 WHERE u.is_active AND lower(u.username) = lower($1)`,
		strings.TrimSpace(username),
	)
	c, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return spotlight.Candidate{}, false, nil
	}
	if err != nil {
		return spotlight.Candidate{}, false, err
	}
	return c, true, nil
}

func (s *Store) FindRoomUserByUsername(ctx context.Context, roomID, username string) (spotlight.Candidate, bool, error) {
	if s.pool == nil {
		return spotlight.Candidate{}, false, fmt.Errorf("directory pool not configured")
	}
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return spotlight.Candidate{}, false, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+`
		 FROM users u
		 JOIN subscriptions sub ON sub.user_id = u.id
		 WHERE u.is_active AND sub.room_id = $1 AND lower(u.username) = lower($2)`,
		pgRoomID, strings.TrimSpace(username),
	)
	c, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return spotlight.Candidate{}, false, nil
	}
	if err != nil {
		return spotlight.Candidate{}, false, err
	}
	return c, true, nil
}

func (s *Store) SearchActiveUsers(ctx context.Context, q spotlight.TermQuery) ([]spotlight.Candidate, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("directory pool not configured")
	}
	if q.Limit <= 0 {
		return []spotlight.Candidate{}, nil
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "u.is_active")
	where = append(where, termPredicate(q, arg))
	where = append(where, fmt.Sprintf("lower(u.username) <> ALL(%s::text[])", arg(lowered(q.Exclude))))

	if scope := q.Scope; scope != nil {
		switch scope.Kind {
		case spotlight.ScopeParticipants:
			if len(scope.UserIDs) == 0 {
				return []spotlight.Candidate{}, nil
			}
			where = append(where, fmt.Sprintf("u.id = ANY(%s::uuid[])", arg(scope.UserIDs)))
		case spotlight.ScopeMembers:
			pgRoomID, err := db.ParseUUID(scope.RoomID)
			if err != nil {
				return nil, err
			}
			where = append(where, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM subscriptions sub WHERE sub.room_id = %s AND sub.user_id = u.id)",
				arg(pgRoomID)))
		case spotlight.ScopeSubscribers:
			pgRoomID, err := db.ParseUUID(scope.RoomID)
			if err != nil {
				return nil, err
			}
			where = append(where, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM subscriptions sub WHERE sub.room_id = %s AND sub.user_id = u.id)",
				arg(pgRoomID)))
			if strings.TrimSpace(scope.OmitUserID) != "" {
				pgOmit, err := db.ParseUUID(scope.OmitUserID)
				if err != nil {
					return nil, err
				}
				where = append(where, fmt.Sprintf("u.id <> %s", arg(pgOmit)))
			}
		default:
			return nil, fmt.Errorf("unknown scope kind: %s", scope.Kind)
		}
	}

	sql := `SELECT ` + candidateColumns + `
		FROM users u
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + sortKey(q.SortByRealName) + `
		LIMIT ` + arg(q.Limit)

	return s.queryCandidates(ctx, sql, args)
}

func (s *Store) SearchConnectedUsers(ctx context.Context, requesterID string, q spotlight.TermQuery) ([]spotlight.Candidate, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("directory pool not configured")
	}
	if q.Limit <= 0 {
		return []spotlight.Candidate{}, nil
	}
	pgRequester, err := db.ParseUUID(requesterID)
	if err != nil {
		return nil, err
	}

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	requester := arg(pgRequester)

	where := []string{
		"u.is_active",
		"u.id <> " + requester,
		fmt.Sprintf(`EXISTS (
			SELECT 1
			FROM subscriptions sub
			JOIN subscriptions mine ON mine.room_id = sub.room_id
			JOIN rooms r ON r.id = sub.room_id
			WHERE sub.user_id = u.id
			  AND mine.user_id = %s
			  AND r.kind = 'd')`, requester),
		termPredicate(q, arg),
		fmt.Sprintf("lower(u.username) <> ALL(%s::text[])", arg(lowered(q.Exclude))),
	}

	sql := `SELECT ` + candidateColumns + `
		FROM users u
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + sortKey(q.SortByRealName) + `
		LIMIT ` + arg(q.Limit)

	return s.queryCandidates(ctx, sql, args)
}

func (s *Store) queryCandidates(ctx context.Context, sql string, args []any) ([]spotlight.Candidate, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]spotlight.Candidate, 0, 8)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// termPredicate builds the case-insensitive substring match over the
// configured search fields. The term is escaped so LIKE metacharacters in
// user input match literally.
func termPredicate(q spotlight.TermQuery, arg func(any) string) string {
	pattern := arg("%" + db.EscapeLike(strings.TrimSpace(q.Term)) + "%")
	fields := q.Fields
	if len(fields) == 0 {
		fields = []string{"username", "name"}
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "username":
			parts = append(parts, "u.username ILIKE "+pattern)
		case "name":
			parts = append(parts, "u.name ILIKE "+pattern)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "u.username ILIKE "+pattern)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func sortKey(byRealName bool) string {
	if byRealName {
		return "u.name ASC NULLS LAST, u.username ASC"
	}
	return "u.username ASC"
}

func lowered(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
