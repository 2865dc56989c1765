// Package users implements account management: deletion with configurable
// message erasure and email changes with rate limiting.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/permissions"
)

type Service struct {
	store  Store
	perms  PermissionChecker
	mailer Mailer
	cfg    config.AccountsConfig
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewService(log *slog.Logger, store Store, perms PermissionChecker, mailer Mailer, cfg config.AccountsConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		perms:    perms,
		mailer:   mailer,
		cfg:      cfg,
		logger:   log.With(slog.String("service", "users")),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Get resolves a user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	user, ok, err := s.store.User(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// Delete removes targetID's account. mode overrides the configured erasure
// mode when non-empty. While the target is the only owner of any room the
// call fails with LastOwnerError unless confirmRelinquish is set, in which
// case those ownerships are given up first. Deleting an unknown user is a
// no-op.
func (s *Service) Delete(ctx context.Context, actorID, targetID, mode string, confirmRelinquish bool) error {
	if actorID != targetID {
		allowed, err := s.perms.HasPermission(ctx, actorID, permissions.DeleteUser, "")
		if err != nil {
			return err
		}
		if !allowed {
			return ErrNotAllowed
		}
	}

	target, ok, err := s.store.User(ctx, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	owned, err := s.store.SoleOwnedRooms(ctx, targetID)
	if err != nil {
		return err
	}
	if len(owned) > 0 {
		if !confirmRelinquish {
			return &LastOwnerError{Rooms: owned}
		}
		if err := s.store.RelinquishOwnerships(ctx, targetID); err != nil {
			return err
		}
	}

	if mode == "" {
		mode = s.cfg.ErasureMode
	}
	erasure, err := parseErasureMode(mode)
	if err != nil {
		return err
	}

	switch erasure {
	case ErasureDelete:
		if err := s.store.DeleteUserMessages(ctx, targetID); err != nil {
			return err
		}
	case ErasureUnlink:
		resident, ok, err := s.store.UserByUsername(ctx, s.cfg.ResidentUsername)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("resident user %q not found", s.cfg.ResidentUsername)
		}
		if err := s.store.ReassignMessages(ctx, targetID, resident.ID, resident.Username); err != nil {
			return err
		}
	}

	if err := s.store.DeleteDirectRooms(ctx, targetID); err != nil {
		return err
	}
	if err := s.store.RemoveSubscriptions(ctx, targetID); err != nil {
		return err
	}
	if err := s.store.RequeueInquiries(ctx, targetID); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, targetID); err != nil {
		return err
	}

	s.logger.Info("user deleted",
		slog.String("user_id", targetID),
		slog.String("username", target.Username),
		slog.String("erasure", string(erasure)))
	return nil
}

// SetEmail changes targetID's email address. Self-service changes are limited
// to one per minute; actors with the edit-other-user-info permission bypass
// both the rate limit and the self-only restriction.
func (s *Service) SetEmail(ctx context.Context, actorID, targetID, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	target, err := s.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if strings.EqualFold(target.Email, email) {
		return nil
	}

	canEditOthers, err := s.perms.HasPermission(ctx, actorID, permissions.EditOtherUserInfo, "")
	if err != nil {
		return err
	}
	if actorID != targetID && !canEditOthers {
		return ErrNotAllowed
	}
	if !canEditOthers && !s.allowChange(targetID) {
		return ErrRateLimited
	}

	taken, err := s.store.EmailInUse(ctx, email, targetID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	if err := s.store.UpdateEmail(ctx, targetID, email); err != nil {
		return err
	}

	if s.mailer != nil && target.Email != "" {
		if err := s.mailer.SendEmailChanged(ctx, target.Email, target.Username, email); err != nil {
			s.logger.Warn("email change notification failed",
				slog.String("user_id", targetID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// allowChange enforces the one change per minute budget per user.
func (s *Service) allowChange(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute), 1)
		s.limiters[userID] = limiter
	}
	return limiter.Allow()
}
