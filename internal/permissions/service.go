// Package permissions derives capability checks from role grants and room
// membership.
package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parlorchat/parlor/internal/spotlight"
)

var _ spotlight.AccessView = (*Service)(nil)

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "permissions")),
	}
}

// HasPermission reports whether userID carries permission, counting both
// server-wide roles and, when roomID is non-empty, roles held in that room.
func (s *Service) HasPermission(ctx context.Context, userID, permission, roomID string) (bool, error) {
	if s.store == nil {
		return false, fmt.Errorf("permissions store not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	roles, err := s.store.UserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(roomID) != "" {
		roomRoles, err := s.store.RoomRoles(ctx, userID, roomID)
		if err != nil {
			return false, err
		}
		roles = append(roles, roomRoles...)
	}
	if len(roles) == 0 {
		return false, nil
	}
	return s.store.Granted(ctx, permission, roles)
}

// HasAllPermissions reports whether userID carries every listed permission.
func (s *Service) HasAllPermissions(ctx context.Context, userID string, perms ...string) (bool, error) {
	for _, perm := range perms {
		ok, err := s.HasPermission(ctx, userID, perm, "")
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// CanAccessRoom reports whether userID may read room: direct rooms require
// being a participant, public channels are open to users holding
// view-c-room, everything else requires a subscription.
func (s *Service) CanAccessRoom(ctx context.Context, userID string, room spotlight.Room) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	switch room.Kind {
	case spotlight.RoomKindDirect:
		for _, id := range room.ParticipantIDs {
			if id == userID {
				return true, nil
			}
		}
		return false, nil
	case spotlight.RoomKindChannel:
		subscribed, err := s.store.IsSubscribed(ctx, room.ID, userID)
		if err != nil {
			return false, err
		}
		if subscribed {
			return true, nil
		}
		return s.HasPermission(ctx, userID, ViewChannelRoom, "")
	default:
		return s.store.IsSubscribed(ctx, room.ID, userID)
	}
}

// CanListOutsiders implements spotlight.AccessView.
func (s *Service) CanListOutsiders(ctx context.Context, userID string) (bool, error) {
	return s.HasAllPermissions(ctx, userID, ViewOutsideRoom, ViewDirectRoom)
}

// CanListInsiders implements spotlight.AccessView.
func (s *Service) CanListInsiders(ctx context.Context, userID string, room spotlight.Room) (bool, error) {
	return s.CanAccessRoom(ctx, userID, room)
}

// CanSearchRooms implements spotlight.AccessView.
func (s *Service) CanSearchRooms(ctx context.Context, userID string) (bool, error) {
	return s.HasAllPermissions(ctx, userID, ViewOutsideRoom, ViewChannelRoom)
}

// CanPreviewChannels implements spotlight.AccessView.
func (s *Service) CanPreviewChannels(ctx context.Context, userID string) (bool, error) {
	return s.HasPermission(ctx, userID, PreviewChannelRoom, "")
}
