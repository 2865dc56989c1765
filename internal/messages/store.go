package messages

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorchat/parlor/internal/db"
)

var _ Store = (*PgStore)(nil)

// PgStore persists messages in PostgreSQL.
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
		logger: log.With(slog.String("service", "messages_store")),
	}
}

const messageColumns = `m.id, m.room_id, m.user_id, m.username, COALESCE(m.body, ''),
	COALESCE(m.system_type, ''), m.thread_id, COALESCE(m.thread_count, 0),
	m.hidden, m.created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id        pgtype.UUID
		roomID    pgtype.UUID
		userID    pgtype.UUID
		threadID  pgtype.UUID
		createdAt pgtype.Timestamptz
		msg       Message
	)
	err := row.Scan(&id, &roomID, &userID, &msg.Username, &msg.Body,
		&msg.SystemType, &threadID, &msg.ThreadCount,
		&msg.Hidden, &createdAt)
	if err != nil {
		return Message{}, err
	}
	msg.ID = db.UUIDString(id)
	msg.RoomID = db.UUIDString(roomID)
	msg.UserID = db.UUIDString(userID)
	msg.ThreadID = db.UUIDString(threadID)
	msg.CreatedAt = db.TimeFromPg(createdAt)
	return msg, nil
}

func (s *PgStore) Message(ctx context.Context, id string) (Message, bool, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, false, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, pgID)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

func (s *PgStore) ThreadReplies(ctx context.Context, threadID string, limit, skip int) ([]Message, error) {
	pgThreadID, err := db.ParseUUID(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 WHERE m.thread_id = $1 AND NOT m.hidden
		 ORDER BY m.created_at DESC
		 LIMIT $2 OFFSET $3`,
		pgThreadID, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *PgStore) CountThreadReplies(ctx context.Context, threadID string) (int, error) {
	pgThreadID, err := db.ParseUUID(threadID)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = $1 AND NOT hidden`,
		pgThreadID).Scan(&count)
	return count, err
}

func (s *PgStore) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	pgRoomID, err := db.ParseUUID(msg.RoomID)
	if err != nil {
		return Message{}, err
	}
	pgUserID, err := db.ParseUUID(msg.UserID)
	if err != nil {
		return Message{}, err
	}
	var threadID pgtype.UUID
	if msg.ThreadID != "" {
		threadID, err = db.ParseUUID(msg.ThreadID)
		if err != nil {
			return Message{}, err
		}
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (room_id, user_id, username, body, system_type, thread_id)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 RETURNING `+insertReturning,
		pgRoomID, pgUserID, msg.Username, msg.Body, msg.SystemType, threadID)
	return scanMessage(row)
}

const insertReturning = `id, room_id, user_id, username, COALESCE(body, ''),
	COALESCE(system_type, ''), thread_id, COALESCE(thread_count, 0),
	hidden, created_at`

func (s *PgStore) MarkThreadRead(ctx context.Context, roomID, userID, threadID string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return err
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	pgThreadID, err := db.ParseUUID(threadID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET unread_threads = array_remove(COALESCE(unread_threads, '{}'), $3)
		 WHERE room_id = $1 AND user_id = $2`,
		pgRoomID, pgUserID, pgThreadID)
	return err
}
