package permissions

import "context"

// Permission names used across the API surface.
const (
	ViewChannelRoom        = "view-c-room"
	ViewDirectRoom         = "view-d-room"
	ViewOutsideRoom        = "view-outside-room"
	PreviewChannelRoom     = "preview-c-room"
	LeaveChannel           = "leave-c"
	LeavePrivate           = "leave-p"
	MuteUser               = "mute-user"
	RemoveUser             = "remove-user"
	EditOtherUserInfo      = "edit-other-user-info"
	DeleteUser             = "delete-user"
	ManageVoipCallSettings = "manage-voip-call-settings"
	ViewAgentExtension     = "view-agent-extension-association"
)

// Store is the role/grant lookup the service runs on.
type Store interface {
	// UserRoles returns the server-wide roles of userID.
	UserRoles(ctx context.Context, userID string) ([]string, error)
	// RoomRoles returns the roles userID holds inside roomID (owner, moderator).
	RoomRoles(ctx context.Context, userID, roomID string) ([]string, error)
	// Granted reports whether any of roles carries the permission.
	Granted(ctx context.Context, permission string, roles []string) (bool, error)
	// IsSubscribed reports whether userID has a subscription to roomID.
	IsSubscribed(ctx context.Context, roomID, userID string) (bool, error)
}
