package voip

import (
	"context"
	"errors"
)

var (
	ErrNotAllowed        = errors.New("not allowed")
	ErrExtensionRequired = errors.New("extension is required")
	ErrExtensionNotFound = errors.New("extension not found")
	ErrNoAssociation     = errors.New("user has no extension assigned")
)

// Extension is a PBX endpoint known to the connector.
type Extension struct {
	Extension string `json:"extension"`
	State     string `json:"state,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ExtensionDetails is the full connector record for one extension.
type ExtensionDetails struct {
	Extension string `json:"extension"`
	Password  string `json:"password,omitempty"`
	Authtype  string `json:"authtype,omitempty"`
	State     string `json:"state,omitempty"`
}

// RegistrationInfo is the payload a softphone needs to register.
type RegistrationInfo struct {
	Host          string `json:"host"`
	Port          string `json:"port"`
	Extension     string `json:"extension"`
	Password      string `json:"password,omitempty"`
	OutboundProxy string `json:"outbound_proxy,omitempty"`
	WebsocketPath string `json:"websocket_path,omitempty"`
	CallerName    string `json:"caller_name,omitempty"`
}

// RegistrationResult carries either the signed token or the plain payload
// when no signing secret is configured.
type RegistrationResult struct {
	Token string            `json:"token,omitempty"`
	Info  *RegistrationInfo `json:"info,omitempty"`
}

// Connector is the external PBX management interface.
type Connector interface {
	Version(ctx context.Context) (string, error)
	ListExtensions(ctx context.Context) ([]Extension, error)
	ExtensionDetails(ctx context.Context, extension string) (ExtensionDetails, bool, error)
	RegistrationInfo(ctx context.Context, extension string) (RegistrationInfo, bool, error)
}

// UserExtensions resolves user to extension associations.
type UserExtensions interface {
	ExtensionForUser(ctx context.Context, userID string) (string, bool, error)
}

// PermissionChecker gates connector access; implemented by the permissions service.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission, roomID string) (bool, error)
}
