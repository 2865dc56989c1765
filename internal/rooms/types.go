package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/parlorchat/parlor/internal/spotlight"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAllowed      = errors.New("not allowed")
	ErrNotInRoom       = errors.New("user is not in this room")
	ErrLastOwner       = errors.New("you are the last owner; set a new owner before leaving")
	ErrInvalidRoomKind = errors.New("action not supported for this room kind")
)

// Room is the full stored room record.
type Room struct {
	ID               string             `json:"id"`
	Kind             spotlight.RoomKind `json:"kind"`
	Name             string             `json:"name,omitempty"`
	FName            string             `json:"fname,omitempty"`
	ParticipantIDs   []string           `json:"-"`
	Muted            []string           `json:"-"`
	Default          bool               `json:"default,omitempty"`
	JoinCodeRequired bool               `json:"join_code_required,omitempty"`
	LastMessage      json.RawMessage    `json:"last_message,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Subscription binds a user to a room.
type Subscription struct {
	ID       string   `json:"id"`
	RoomID   string   `json:"room_id"`
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	Open     bool     `json:"open"`
}

// MemberAction is a room-scoped moderation action gated per room kind.
type MemberAction string

const (
	ActionLeave  MemberAction = "leave"
	ActionMute   MemberAction = "mute"
	ActionRemove MemberAction = "remove"
)

// allowsMemberAction is the per-kind action directive: direct rooms support
// no moderation, livechat rooms only leaving, channels and private groups
// support everything.
func allowsMemberAction(kind spotlight.RoomKind, action MemberAction) bool {
	switch kind {
	case spotlight.RoomKindDirect:
		return false
	case spotlight.RoomKindLivechat:
		return action == ActionLeave
	default:
		return true
	}
}

// Store is the persistence surface of the rooms service.
type Store interface {
	Room(ctx context.Context, id string) (Room, bool, error)
	Subscription(ctx context.Context, roomID, userID string) (Subscription, bool, error)
	SubscriptionByUsername(ctx context.Context, roomID, username string) (Subscription, bool, error)
	RemoveSubscription(ctx context.Context, roomID, userID string) error
	RemoveRoomRoles(ctx context.Context, roomID, userID string, roles []string) error
	CountRoomRole(ctx context.Context, roomID, role string) (int, error)
	HasRoomRole(ctx context.Context, roomID, userID, role string) (bool, error)
	AddMutedUsername(ctx context.Context, roomID, username string) error
	RemoveMutedUsername(ctx context.Context, roomID, username string) error
	CloseSubscriptions(ctx context.Context, roomID string) error
	Username(ctx context.Context, userID string) (string, error)

	SubscribedRoomIDs(ctx context.Context, userID string, kinds []spotlight.RoomKind) ([]string, error)
	FindRoomByName(ctx context.Context, name string, kinds []spotlight.RoomKind) (Room, bool, error)
	SearchRooms(ctx context.Context, term string, kinds []spotlight.RoomKind, excludeIDs []string, limit int) ([]Room, error)
	SearchPublicRooms(ctx context.Context, term string, limit int) ([]Room, error)
}

// PermissionChecker gates member actions; implemented by the permissions service.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission, roomID string) (bool, error)
}

// Messenger records system messages in rooms; implemented by the messages service.
type Messenger interface {
	CreateSystemMessage(ctx context.Context, roomID, actorID, actorUsername, systemType, body string) error
}

// System message types recorded by member actions.
const (
	SystemUserLeft    = "ul"
	SystemUserRemoved = "ru"
	SystemUserMuted   = "user-muted"
	SystemUserUnmuted = "user-unmuted"
	SystemRoomClosed  = "livechat-close"
)
