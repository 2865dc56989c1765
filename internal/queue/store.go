package queue

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

// PgStore persists livechat inquiries in PostgreSQL.
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
		logger: log.With(slog.String("service", "queue_store")),
	}
}

const inquiryColumns = `i.id, i.room_id, i.status, i.queued_at`

func scanInquiry(row pgx.Row) (Inquiry, error) {
	var (
		id       pgtype.UUID
		roomID   pgtype.UUID
		queuedAt pgtype.Timestamptz
		inquiry  Inquiry
	)
	if err := row.Scan(&id, &roomID, &inquiry.Status, &queuedAt); err != nil {
		return Inquiry{}, err
	}
	inquiry.ID = db.UUIDString(id)
	inquiry.RoomID = db.UUIDString(roomID)
	inquiry.QueuedAt = db.TimeFromPg(queuedAt)
	return inquiry, nil
}

func (s *PgStore) Inquiry(ctx context.Context, id string) (Inquiry, bool, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Inquiry{}, false, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+inquiryColumns+` FROM inquiries i WHERE i.id = $1`, pgID)
	inquiry, err := scanInquiry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inquiry{}, false, nil
	}
	if err != nil {
		return Inquiry{}, false, err
	}
	return inquiry, true, nil
}

func (s *PgStore) QueuedInquiries(ctx context.Context) ([]Inquiry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+inquiryColumns+` FROM inquiries i WHERE i.status = 'queued' ORDER BY i.queued_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Inquiry{}
	for rows.Next() {
		inquiry, err := scanInquiry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inquiry)
	}
	return out, rows.Err()
}

func (s *PgStore) CloseInquiry(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE inquiries SET status = 'closed' WHERE id = $1`, pgID)
	return err
}
