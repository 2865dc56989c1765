package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotAllowed   = errors.New("not allowed")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrEmailTaken   = errors.New("email address is already in use")
	ErrRateLimited  = errors.New("email was changed recently, try again later")
)

// LastOwnerError reports the rooms that block a deletion because the user is
// their only owner.
type LastOwnerError struct {
	Rooms []string
}

func (e *LastOwnerError) Error() string {
	return fmt.Sprintf("user is the last owner of: %s", strings.Join(e.Rooms, ", "))
}

// ErasureMode controls what happens to a deleted user's messages.
type ErasureMode string

const (
	// ErasureDelete removes the user's messages.
	ErasureDelete ErasureMode = "delete"
	// ErasureUnlink reassigns the user's messages to the resident user.
	ErasureUnlink ErasureMode = "unlink"
	// ErasureKeep leaves messages untouched under the old username.
	ErasureKeep ErasureMode = "keep"
)

func parseErasureMode(raw string) (ErasureMode, error) {
	switch mode := ErasureMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ErasureDelete, ErasureUnlink, ErasureKeep:
		return mode, nil
	case "":
		return ErasureKeep, nil
	default:
		return "", fmt.Errorf("unknown erasure mode %q", raw)
	}
}

// User is the stored account record.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Status    string    `json:"status,omitempty"`
	Extension string    `json:"extension,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence surface of the users service.
type Store interface {
	User(ctx context.Context, id string) (User, bool, error)
	UserByUsername(ctx context.Context, username string) (User, bool, error)
	EmailInUse(ctx context.Context, email, omitUserID string) (bool, error)
	UpdateEmail(ctx context.Context, userID, email string) error
	DeleteUser(ctx context.Context, userID string) error

	// SoleOwnedRooms returns names of rooms where userID is the only owner.
	SoleOwnedRooms(ctx context.Context, userID string) ([]string, error)
	// RelinquishOwnerships drops userID's owner role everywhere and removes
	// rooms nobody else is subscribed to.
	RelinquishOwnerships(ctx context.Context, userID string) error
	DeleteUserMessages(ctx context.Context, userID string) error
	ReassignMessages(ctx context.Context, userID, toUserID, toUsername string) error
	DeleteDirectRooms(ctx context.Context, userID string) error
	RemoveSubscriptions(ctx context.Context, userID string) error
	// RequeueInquiries returns conversations taken by userID to the queue.
	RequeueInquiries(ctx context.Context, userID string) error
}

// PermissionChecker gates cross-user actions; implemented by the permissions service.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission, roomID string) (bool, error)
}

// Mailer sends account notifications.
type Mailer interface {
	SendEmailChanged(ctx context.Context, to, username, newEmail string) error
}
