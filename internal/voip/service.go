// Package voip exposes the PBX connector: extension listings and softphone
// registration info.
package voip

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/permissions"
)

// registrationTokenTTL bounds how long a signed registration payload stays usable.
const registrationTokenTTL = time.Minute

type Service struct {
	connector  Connector
	extensions UserExtensions
	perms      PermissionChecker
	cfg        config.VoIPConfig
	logger     *slog.Logger
}

func NewService(log *slog.Logger, connector Connector, extensions UserExtensions, perms PermissionChecker, cfg config.VoIPConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		connector:  connector,
		extensions: extensions,
		perms:      perms,
		cfg:        cfg,
		logger:     log.With(slog.String("service", "voip")),
	}
}

// ConnectorVersion returns the PBX software version.
func (s *Service) ConnectorVersion(ctx context.Context, userID string) (string, error) {
	if err := s.require(ctx, userID, permissions.ManageVoipCallSettings); err != nil {
		return "", err
	}
	return s.connector.Version(ctx)
}

// ListExtensions returns every extension known to the connector.
func (s *Service) ListExtensions(ctx context.Context, userID string) ([]Extension, error) {
	if err := s.require(ctx, userID, permissions.ManageVoipCallSettings); err != nil {
		return nil, err
	}
	return s.connector.ListExtensions(ctx)
}

// ExtensionDetails returns the connector record for one extension.
func (s *Service) ExtensionDetails(ctx context.Context, userID, extension string) (ExtensionDetails, error) {
	if err := s.require(ctx, userID, permissions.ManageVoipCallSettings); err != nil {
		return ExtensionDetails{}, err
	}
	extension = strings.TrimSpace(extension)
	if extension == "" {
		return ExtensionDetails{}, ErrExtensionRequired
	}
	details, ok, err := s.connector.ExtensionDetails(ctx, extension)
	if err != nil {
		return ExtensionDetails{}, err
	}
	if !ok {
		return ExtensionDetails{}, ErrExtensionNotFound
	}
	return details, nil
}

// RegistrationInfoByExtension returns signed registration info for extension.
func (s *Service) RegistrationInfoByExtension(ctx context.Context, userID, extension string) (RegistrationResult, error) {
	if err := s.require(ctx, userID, permissions.ManageVoipCallSettings); err != nil {
		return RegistrationResult{}, err
	}
	extension = strings.TrimSpace(extension)
	if extension == "" {
		return RegistrationResult{}, ErrExtensionRequired
	}
	return s.registrationResult(ctx, extension)
}

// RegistrationInfoForUser returns signed registration info for the extension
// assigned to targetID. Callers may only request their own association.
func (s *Service) RegistrationInfoForUser(ctx context.Context, callerID, targetID string) (RegistrationResult, error) {
	if callerID != targetID {
		return RegistrationResult{}, ErrNotAllowed
	}
	if err := s.require(ctx, callerID, permissions.ViewAgentExtension); err != nil {
		return RegistrationResult{}, err
	}
	extension, ok, err := s.extensions.ExtensionForUser(ctx, targetID)
	if err != nil {
		return RegistrationResult{}, err
	}
	if !ok {
		return RegistrationResult{}, ErrNoAssociation
	}
	return s.registrationResult(ctx, extension)
}

func (s *Service) registrationResult(ctx context.Context, extension string) (RegistrationResult, error) {
	info, ok, err := s.connector.RegistrationInfo(ctx, extension)
	if err != nil {
		return RegistrationResult{}, err
	}
	if !ok {
		return RegistrationResult{}, ErrExtensionNotFound
	}

	if s.cfg.JWTSecret == "" {
		s.logger.Warn("voip jwt secret not set, returning unsigned registration info")
		return RegistrationResult{Info: &info}, nil
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"host":           info.Host,
		"port":           info.Port,
		"extension":      info.Extension,
		"password":       info.Password,
		"outbound_proxy": info.OutboundProxy,
		"websocket_path": info.WebsocketPath,
		"caller_name":    info.CallerName,
		"iat":            now.Unix(),
		"exp":            now.Add(registrationTokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return RegistrationResult{}, err
	}
	return RegistrationResult{Token: signed}, nil
}

func (s *Service) require(ctx context.Context, userID, permission string) error {
	allowed, err := s.perms.HasPermission(ctx, userID, permission, "")
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotAllowed
	}
	return nil
}
