// Package rooms implements room membership actions: leaving, muting, and
// removing users, with per-kind directives and last-owner protection.
package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parlorchat/parlor/internal/permissions"
	"github.com/parlorchat/parlor/internal/spotlight"
)

type Service struct {
	store     Store
	perms     PermissionChecker
	messenger Messenger
	logger    *slog.Logger
}

func NewService(log *slog.Logger, store Store, perms PermissionChecker, messenger Messenger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		perms:     perms,
		messenger: messenger,
		logger:    log.With(slog.String("service", "rooms")),
	}
}

// Get resolves a room by id.
func (s *Service) Get(ctx context.Context, roomID string) (Room, error) {
	if s.store == nil {
		return Room{}, fmt.Errorf("rooms store not configured")
	}
	room, ok, err := s.store.Room(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return room, nil
}

// Leave removes userID from the room at their own request.
func (s *Service) Leave(ctx context.Context, roomID, userID string) error {
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !allowsMemberAction(room.Kind, ActionLeave) {
		return fmt.Errorf("%w: %s", ErrInvalidRoomKind, room.Kind)
	}

	var perm string
	switch room.Kind {
	case spotlight.RoomKindChannel:
		perm = permissions.LeaveChannel
	case spotlight.RoomKindPrivate:
		perm = permissions.LeavePrivate
	}
	if perm != "" {
		allowed, err := s.perms.HasPermission(ctx, userID, perm, "")
		if err != nil {
			return err
		}
		if !allowed {
			return ErrNotAllowed
		}
	}

	sub, ok, err := s.store.Subscription(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInRoom
	}

	if err := s.guardLastOwner(ctx, roomID, userID); err != nil {
		return err
	}

	return s.removeFromRoom(ctx, room, sub, sub.UserID, sub.Username, SystemUserLeft)
}

// Mute adds username to the room's mute list on behalf of actorID.
func (s *Service) Mute(ctx context.Context, roomID, actorID, username string) error {
	return s.setMuted(ctx, roomID, actorID, username, true)
}

// Unmute removes username from the room's mute list.
func (s *Service) Unmute(ctx context.Context, roomID, actorID, username string) error {
	return s.setMuted(ctx, roomID, actorID, username, false)
}

func (s *Service) setMuted(ctx context.Context, roomID, actorID, username string, muted bool) error {
	allowed, err := s.perms.HasPermission(ctx, actorID, permissions.MuteUser, roomID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotAllowed
	}

	room, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !allowsMemberAction(room.Kind, ActionMute) {
		return fmt.Errorf("%w: %s", ErrInvalidRoomKind, room.Kind)
	}

	target, ok, err := s.store.SubscriptionByUsername(ctx, roomID, username)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInRoom
	}

	systemType := SystemUserMuted
	if muted {
		err = s.store.AddMutedUsername(ctx, roomID, target.Username)
	} else {
		err = s.store.RemoveMutedUsername(ctx, roomID, target.Username)
		systemType = SystemUserUnmuted
	}
	if err != nil {
		return err
	}

	actorUsername, err := s.store.Username(ctx, actorID)
	if err != nil {
		return err
	}
	return s.messenger.CreateSystemMessage(ctx, roomID, actorID, actorUsername, systemType, target.Username)
}

// Remove kicks username out of the room on behalf of actorID.
func (s *Service) Remove(ctx context.Context, roomID, actorID, username string) error {
	allowed, err := s.perms.HasPermission(ctx, actorID, permissions.RemoveUser, roomID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotAllowed
	}

	room, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !allowsMemberAction(room.Kind, ActionRemove) {
		return ErrNotAllowed
	}

	target, ok, err := s.store.SubscriptionByUsername(ctx, roomID, username)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInRoom
	}

	if err := s.guardLastOwner(ctx, roomID, target.UserID); err != nil {
		return err
	}

	return s.removeFromRoom(ctx, room, target, actorID, "", SystemUserRemoved)
}

// Close ends a conversation: subscriptions are closed and the closing is
// recorded as a system message. Used by the livechat queue monitor.
func (s *Service) Close(ctx context.Context, roomID, byUserID, comment string) error {
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.store.CloseSubscriptions(ctx, room.ID); err != nil {
		return err
	}
	username, err := s.store.Username(ctx, byUserID)
	if err != nil {
		return err
	}
	return s.messenger.CreateSystemMessage(ctx, room.ID, byUserID, username, SystemRoomClosed, comment)
}

// guardLastOwner fails with ErrLastOwner when userID is the only owner of the room.
func (s *Service) guardLastOwner(ctx context.Context, roomID, userID string) error {
	isOwner, err := s.store.HasRoomRole(ctx, roomID, userID, "owner")
	if err != nil {
		return err
	}
	if !isOwner {
		return nil
	}
	owners, err := s.store.CountRoomRole(ctx, roomID, "owner")
	if err != nil {
		return err
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

// removeFromRoom drops the subscription, demotes room roles where they
// exist, and records the system message attributed to actorID.
func (s *Service) removeFromRoom(ctx context.Context, room Room, target Subscription, actorID, actorUsername, systemType string) error {
	if err := s.store.RemoveSubscription(ctx, room.ID, target.UserID); err != nil {
		return err
	}

	switch room.Kind {
	case spotlight.RoomKindChannel, spotlight.RoomKindPrivate:
		if err := s.store.RemoveRoomRoles(ctx, room.ID, target.UserID, []string{"owner", "moderator"}); err != nil {
			return err
		}
	}

	if strings.TrimSpace(actorUsername) == "" {
		username, err := s.store.Username(ctx, actorID)
		if err != nil {
			return err
		}
		actorUsername = username
	}
	return s.messenger.CreateSystemMessage(ctx, room.ID, actorID, actorUsername, systemType, target.Username)
}
