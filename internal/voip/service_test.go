package voip

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parlorchat/parlor/internal/config"
)

type fakeConnector struct {
	version    string
	extensions []Extension
	details    map[string]ExtensionDetails
	info       map[string]RegistrationInfo
}

func (f *fakeConnector) Version(context.Context) (string, error) {
	return f.version, nil
}

func (f *fakeConnector) ListExtensions(context.Context) ([]Extension, error) {
	return f.extensions, nil
}

func (f *fakeConnector) ExtensionDetails(_ context.Context, extension string) (ExtensionDetails, bool, error) {
	details, ok := f.details[extension]
	return details, ok, nil
}

func (f *fakeConnector) RegistrationInfo(_ context.Context, extension string) (RegistrationInfo, bool, error) {
	info, ok := f.info[extension]
	return info, ok, nil
}

type fakeExtensions struct {
	byUser map[string]string
}

func (f *fakeExtensions) ExtensionForUser(_ context.Context, userID string) (string, bool, error) {
	extension, ok := f.byUser[userID]
	return extension, ok, nil
}

type fakeVoipPerms struct {
	granted map[string]bool
}

func (f *fakeVoipPerms) HasPermission(_ context.Context, userID, permission, _ string) (bool, error) {
	return f.granted[userID+"/"+permission], nil
}

func testVoipService(secret string) (*Service, *fakeConnector) {
	connector := &fakeConnector{
		version:    "18.2.0",
		extensions: []Extension{{Extension: "8001"}, {Extension: "8002"}},
		details: map[string]ExtensionDetails{
			"8001": {Extension: "8001", Authtype: "userpass"},
		},
		info: map[string]RegistrationInfo{
			"8001": {Host: "pbx.example.com", Port: "5060", Extension: "8001", Password: "s3cret"},
		},
	}
	perms := &fakeVoipPerms{granted: map[string]bool{
		"admin/manage-voip-call-settings":        true,
		"agent/view-agent-extension-association": true,
	}}
	extensions := &fakeExtensions{byUser: map[string]string{"agent": "8001"}}
	cfg := config.VoIPConfig{JWTSecret: secret}
	return NewService(slog.New(slog.DiscardHandler), connector, extensions, perms, cfg), connector
}

func TestConnectorVersion(t *testing.T) {
	svc, _ := testVoipService("secret")

	version, err := svc.ConnectorVersion(context.Background(), "admin")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != "18.2.0" {
		t.Fatalf("unexpected version %q", version)
	}

	if _, err := svc.ConnectorVersion(context.Background(), "agent"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestListExtensions(t *testing.T) {
	svc, _ := testVoipService("secret")
	extensions, err := svc.ListExtensions(context.Background(), "admin")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(extensions) != 2 {
		t.Fatalf("expected 2 extensions, got %d", len(extensions))
	}
}

func TestExtensionDetails(t *testing.T) {
	svc, _ := testVoipService("secret")

	details, err := svc.ExtensionDetails(context.Background(), "admin", "8001")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Authtype != "userpass" {
		t.Fatalf("unexpected details: %+v", details)
	}

	if _, err := svc.ExtensionDetails(context.Background(), "admin", "  "); !errors.Is(err, ErrExtensionRequired) {
		t.Fatalf("expected ErrExtensionRequired, got %v", err)
	}
	if _, err := svc.ExtensionDetails(context.Background(), "admin", "9999"); !errors.Is(err, ErrExtensionNotFound) {
		t.Fatalf("expected ErrExtensionNotFound, got %v", err)
	}
}

func TestRegistrationInfoSigned(t *testing.T) {
	svc, _ := testVoipService("voip-secret")

	result, err := svc.RegistrationInfoByExtension(context.Background(), "admin", "8001")
	if err != nil {
		t.Fatalf("registration info: %v", err)
	}
	if result.Token == "" || result.Info != nil {
		t.Fatalf("expected signed token only, got %+v", result)
	}

	parsed, err := jwt.Parse(result.Token, func(*jwt.Token) (any, error) {
		return []byte("voip-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["extension"] != "8001" || claims["host"] != "pbx.example.com" {
		t.Fatalf("unexpected claims: %v", claims)
	}
}

func TestRegistrationInfoUnsignedWithoutSecret(t *testing.T) {
	svc, _ := testVoipService("")

	result, err := svc.RegistrationInfoByExtension(context.Background(), "admin", "8001")
	if err != nil {
		t.Fatalf("registration info: %v", err)
	}
	if result.Token != "" || result.Info == nil {
		t.Fatalf("expected plain payload, got %+v", result)
	}
	if result.Info.Extension != "8001" {
		t.Fatalf("unexpected payload: %+v", result.Info)
	}
}

func TestRegistrationInfoForUser(t *testing.T) {
	svc, _ := testVoipService("secret")

	result, err := svc.RegistrationInfoForUser(context.Background(), "agent", "agent")
	if err != nil {
		t.Fatalf("registration for user: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected token, got %+v", result)
	}
}

func TestRegistrationInfoForOtherUser(t *testing.T) {
	svc, _ := testVoipService("secret")
	if _, err := svc.RegistrationInfoForUser(context.Background(), "agent", "someone-else"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestRegistrationInfoWithoutAssociation(t *testing.T) {
	svc, _ := testVoipService("secret")
	perms := &fakeVoipPerms{granted: map[string]bool{
		"lonely/view-agent-extension-association": true,
	}}
	svc.perms = perms
	svc.extensions = &fakeExtensions{byUser: map[string]string{}}

	if _, err := svc.RegistrationInfoForUser(context.Background(), "lonely", "lonely"); !errors.Is(err, ErrNoAssociation) {
		t.Fatalf("expected ErrNoAssociation, got %v", err)
	}
}
