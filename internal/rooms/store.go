package rooms

import (
	"context"
	"encoding/json"
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

var _ Store = (*PgStore)(nil)

// PgStore persists rooms and subscriptions in PostgreSQL.
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
		logger: log.With(slog.String("service", "rooms_store")),
	}
}

const roomColumns = `r.id, r.kind, COALESCE(r.name, ''), COALESCE(r.fname, ''),
	COALESCE(r.participant_ids, '{}'), COALESCE(r.muted, '{}'),
	r.is_default, r.join_code_required, r.last_message, r.created_at, r.updated_at`

func scanRoom(row pgx.Row) (Room, error) {
	var (
		id             pgtype.UUID
		kind           string
		participantIDs []pgtype.UUID
		lastMessage    []byte
		createdAt      pgtype.Timestamptz
		updatedAt      pgtype.Timestamptz
		room           Room
	)
	err := row.Scan(&id, &kind, &room.Name, &room.FName,
		&participantIDs, &room.Muted,
		&room.Default, &room.JoinCodeRequired, &lastMessage, &createdAt, &updatedAt)
	if err != nil {
		return Room{}, err
	}
	room.ID = db.UUIDString(id)
	room.Kind = spotlight.RoomKind(kind)
	for _, pid := range participantIDs {
		room.ParticipantIDs = append(room.ParticipantIDs, db.UUIDString(pid))
	}
	room.LastMessage = json.RawMessage(lastMessage)
	room.CreatedAt = db.TimeFromPg(createdAt)
	room.UpdatedAt = db.TimeFromPg(updatedAt)
	return room, nil
}

func (s *PgStore) Room(ctx context.Context, id string) (Room, bool, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Room{}, false, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`, pgID)
	room, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, false, nil
	}
	if err != nil {
		return Room{}, false, err
	}
	return room, true, nil
}

const subscriptionColumns = `sub.id, sub.room_id, sub.user_id, sub.username, COALESCE(sub.roles, '{}'), sub.open`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var (
		id     pgtype.UUID
		roomID pgtype.UUID
		userID pgtype.UUID
		sub    Subscription
	)
	if err := row.Scan(&id, &roomID, &userID, &sub.Username, &sub.Roles, &sub.Open); err != nil {
		return Subscription{}, err
	}
	sub.ID = db.UUIDString(id)
	sub.RoomID = db.UUIDString(roomID)
	sub.UserID = db.UUIDString(userID)
	return sub, nil
}

func (s *PgStore) Subscription(ctx context.Context, roomID, userID string) (Subscription, bool, error) {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return Subscription{}, false, err
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return Subscription{}, false, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions sub
		 WHERE sub.room_id = $1 AND sub.user_id = $2`,
		pgRoomID, pgUserID)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, false, nil
	}
	if err != nil {
		return Subscription{}, false, err
	}
	return sub, true, nil
}

func (s *PgStore) SubscriptionByUsername(ctx context.Context, roomID, username string) (Subscription, bool, error) {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return Subscription{}, false, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions sub
		 WHERE sub.room_id = $1 AND lower(sub.username) = lower($2)`,
		pgRoomID, strings.TrimSpace(username))
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, false, nil
	}
	if err != nil {
		return Subscription{}, false, err
	}
	return sub, true, nil
}

func (s *PgStore) RemoveSubscription(ctx context.Context, roomID, userID string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return err
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE room_id = $1 AND user_id = $2`,
		pgRoomID, pgUserID)
	return err
}

func (s *PgStore) RemoveRoomRoles(ctx context.Context, roomID, userID string, roles []string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return err
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET roles = (SELECT COALESCE(array_agg(r), '{}') FROM unnest(roles) AS r WHERE r <> ALL($3::text[]))
		 WHERE room_id = $1 AND user_id = $2`,
		pgRoomID, pgUserID, roles)
	return err
}

func (s *PgStore) CountRoomRole(ctx context.Context, roomID, role string) (int, error) {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE room_id = $1 AND $2 = ANY(roles)`,
		pgRoomID, role).Scan(&count)
	return count, err
}

func (s *PgStore) HasRoomRole(ctx context.Context, roomID, userID, role string) (bool, error) {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return false, err
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return false, err
	}
	var has bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM subscriptions
		   WHERE room_id = $1 AND user_id = $2 AND $3 = ANY(roles)
		 )`,
		pgRoomID, pgUserID, role).Scan(&has)
	return has, err
}

func (s *PgStore) AddMutedUsername(ctx context.Context, roomID, username string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE rooms
		 SET muted = array_append(COALESCE(muted, '{}'), $2), updated_at = now()
		 WHERE id = $1 AND NOT ($2 = ANY(COALESCE(muted, '{}')))`,
		pgRoomID, username)
	return err
}

func (s *PgStore) RemoveMutedUsername(ctx context.Context, roomID, username string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE rooms
		 SET muted = array_remove(COALESCE(muted, '{}'), $2), updated_at = now()
		 WHERE id = $1`,
		pgRoomID, username)
	return err
}

func (s *PgStore) CloseSubscriptions(ctx context.Context, roomID string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE subscriptions SET open = FALSE WHERE room_id = $1`, pgRoomID)
	return err
}

func (s *PgStore) Username(ctx context.Context, userID string) (string, error) {
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return "", err
	}
	var username string
	err = s.pool.QueryRow(ctx,
		`SELECT username FROM users WHERE id = $1`, pgUserID).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("user %s not found", userID)
	}
	return username, err
}

func (s *PgStore) SubscribedRoomIDs(ctx context.Context, userID string, kinds []spotlight.RoomKind) ([]string, error) {
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT r.id
		 FROM rooms r
		 JOIN subscriptions sub ON sub.room_id = r.id
		 WHERE sub.user_id = $1 AND r.kind = ANY($2::text[])`,
		pgUserID, kindStrings(kinds))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, db.UUIDString(id))
	}
	return ids, rows.Err()
}

func (s *PgStore) FindRoomByName(ctx context.Context, name string, kinds []spotlight.RoomKind) (Room, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+`
		 FROM rooms r
		 WHERE lower(r.name) = lower($1) AND r.kind = ANY($2::text[])`,
		strings.TrimSpace(name), kindStrings(kinds))
	room, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, false, nil
	}
	if err != nil {
		return Room{}, false, err
	}
	return room, true, nil
}

func (s *PgStore) SearchRooms(ctx context.Context, term string, kinds []spotlight.RoomKind, excludeIDs []string, limit int) ([]Room, error) {
	if limit <= 0 {
		return []Room{}, nil
	}
	pattern := "%" + db.EscapeLike(strings.TrimSpace(term)) + "%"
	excluded := make([]pgtype.UUID, 0, len(excludeIDs))
	for _, id := range excludeIDs {
		pgID, err := db.ParseUUID(id)
		if err != nil {
			continue
		}
		excluded = append(excluded, pgID)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+roomColumns+`
		 FROM rooms r
		 WHERE r.kind = ANY($1::text[])
		   AND (r.name ILIKE $2 OR r.fname ILIKE $2)
		   AND r.id <> ALL($3::uuid[])
		 ORDER BY r.name
		 LIMIT $4`,
		kindStrings(kinds), pattern, excluded, limit)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

func (s *PgStore) SearchPublicRooms(ctx context.Context, term string, limit int) ([]Room, error) {
	if limit <= 0 {
		return []Room{}, nil
	}
	pattern := "%" + db.EscapeLike(strings.TrimSpace(term)) + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT `+roomColumns+`
		 FROM rooms r
		 WHERE r.kind = 'c'
		   AND NOT r.is_default
		   AND (r.name ILIKE $1 OR r.fname ILIKE $1)
		 ORDER BY r.name
		 LIMIT $2`,
		pattern, limit)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

func collectRooms(rows pgx.Rows) ([]Room, error) {
	defer rows.Close()
	out := []Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func kindStrings(kinds []spotlight.RoomKind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}

var _ spotlight.RoomSource = (*SpotlightSource)(nil)

// SpotlightSource projects the rooms store onto the search-side room view.
type SpotlightSource struct {
	store Store
}

func NewSpotlightSource(store Store) *SpotlightSource {
	return &SpotlightSource{store: store}
}

func toSpotlightRoom(room Room) spotlight.Room {
	return spotlight.Room{
		ID:               room.ID,
		Kind:             room.Kind,
		Name:             room.Name,
		FName:            room.FName,
		ParticipantIDs:   room.ParticipantIDs,
		JoinCodeRequired: room.JoinCodeRequired,
		LastMessage:      room.LastMessage,
	}
}

func toSpotlightRooms(rooms []Room) []spotlight.Room {
	out := make([]spotlight.Room, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toSpotlightRoom(room))
	}
	return out
}

func (s *SpotlightSource) Room(ctx context.Context, id string) (spotlight.Room, bool, error) {
	room, ok, err := s.store.Room(ctx, id)
	if err != nil || !ok {
		return spotlight.Room{}, ok, err
	}
	return toSpotlightRoom(room), true, nil
}

func (s *SpotlightSource) SubscribedRoomIDs(ctx context.Context, userID string, kinds []spotlight.RoomKind) ([]string, error) {
	return s.store.SubscribedRoomIDs(ctx, userID, kinds)
}

func (s *SpotlightSource) FindRoomByName(ctx context.Context, name string, kinds []spotlight.RoomKind) (spotlight.Room, bool, error) {
	room, ok, err := s.store.FindRoomByName(ctx, name, kinds)
	if err != nil || !ok {
		return spotlight.Room{}, ok, err
	}
	return toSpotlightRoom(room), true, nil
}

func (s *SpotlightSource) SearchRooms(ctx context.Context, term string, kinds []spotlight.RoomKind, excludeIDs []string, limit int) ([]spotlight.Room, error) {
	found, err := s.store.SearchRooms(ctx, term, kinds, excludeIDs, limit)
	if err != nil {
		return nil, err
	}
	return toSpotlightRooms(found), nil
}

func (s *SpotlightSource) SearchPublicRooms(ctx context.Context, term string, limit int) ([]spotlight.Room, error) {
	found, err := s.store.SearchPublicRooms(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	return toSpotlightRooms(found), nil
}
