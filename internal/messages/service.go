// Package messages serves thread retrieval and records system messages.
package messages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parlorchat/parlor/internal/config"
)

type Service struct {
	store  Store
	access RoomAccess
	cfg    config.AccountsConfig
	logger *slog.Logger
}

func NewService(log *slog.Logger, store Store, access RoomAccess, cfg config.AccountsConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		access: access,
		cfg:    cfg,
		logger: log.With(slog.String("service", "messages")),
	}
}

// GetThreadMessages returns the thread head followed by its visible replies,
// newest reply first, honoring limit and skip over the replies. The thread is
// marked read for userID as a side effect. A missing head or a head without
// replies yields an empty page.
func (s *Service) GetThreadMessages(ctx context.Context, userID, threadID string, limit, skip int) (ThreadPage, error) {
	if !s.cfg.ThreadsEnabled {
		return ThreadPage{}, ErrThreadsDisabled
	}
	if limit > maxThreadPageSize {
		return ThreadPage{}, fmt.Errorf("%w: limit exceeds %d", ErrNotAllowed, maxThreadPageSize)
	}
	if limit <= 0 {
		limit = maxThreadPageSize
	}
	if skip < 0 {
		skip = 0
	}

	head, ok, err := s.store.Message(ctx, threadID)
	if err != nil {
		return ThreadPage{}, err
	}
	if !ok {
		return ThreadPage{Messages: []Message{}}, nil
	}

	allowed, err := s.access.CanAccessRoom(ctx, userID, head.RoomID)
	if err != nil {
		return ThreadPage{}, err
	}
	if !allowed {
		return ThreadPage{}, ErrNotAllowed
	}

	total, err := s.store.CountThreadReplies(ctx, threadID)
	if err != nil {
		return ThreadPage{}, err
	}
	if total == 0 {
		return ThreadPage{Messages: []Message{}}, nil
	}

	replies, err := s.store.ThreadReplies(ctx, threadID, limit, skip)
	if err != nil {
		return ThreadPage{}, err
	}

	if err := s.store.MarkThreadRead(ctx, head.RoomID, userID, threadID); err != nil {
		s.logger.Warn("marking thread read failed",
			slog.String("thread_id", threadID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}

	page := ThreadPage{
		Messages: make([]Message, 0, len(replies)+1),
		Total:    total + 1,
	}
	page.Messages = append(page.Messages, head)
	page.Messages = append(page.Messages, replies...)
	return page, nil
}

// CreateSystemMessage records an event message in roomID attributed to the actor.
func (s *Service) CreateSystemMessage(ctx context.Context, roomID, actorID, actorUsername, systemType, body string) error {
	_, err := s.store.CreateMessage(ctx, Message{
		RoomID:     roomID,
		UserID:     actorID,
		Username:   actorUsername,
		Body:       body,
		SystemType: systemType,
	})
	return err
}
