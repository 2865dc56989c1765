package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/users"
)

// UsersHandler serves account deletion and email changes.
type UsersHandler struct {
	service *users.Service
	logger  *slog.Logger
}

func NewUsersHandler(log *slog.Logger, service *users.Service) *UsersHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UsersHandler{
		service: service,
		logger:  log.With(slog.String("handler", "users")),
	}
}

func (h *UsersHandler) Register(e *echo.Echo) {
	userGroup := e.Group("/users")
	userGroup.GET("/me", h.GetMe)
	userGroup.DELETE("/me", h.DeleteMe)
	userGroup.DELETE("/:id", h.DeleteUser)
	userGroup.PUT("/me/email", h.SetMyEmail)
	userGroup.PUT("/:id/email", h.SetEmail)
}

// GetMe returns the caller's account.
func (h *UsersHandler) GetMe(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.Request().Context(), userID)
	if err != nil {
		return mapUserErr(err)
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteMe removes the caller's own account.
func (h *UsersHandler) DeleteMe(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	return h.delete(c, userID, userID)
}

// DeleteUser removes another user's account.
func (h *UsersHandler) DeleteUser(c echo.Context) error {
	actorID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	return h.delete(c, actorID, c.Param("id"))
}

func (h *UsersHandler) delete(c echo.Context, actorID, targetID string) error {
	confirm, _ := strconv.ParseBool(c.QueryParam("confirm_relinquish"))
	if err := h.service.Delete(c.Request().Context(), actorID, targetID, c.QueryParam("erasure"), confirm); err != nil {
		return mapUserErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetEmailRequest is the email change payload.
type SetEmailRequest struct {
	Email string `json:"email"`
}

// SetMyEmail changes the caller's own email address.
func (h *UsersHandler) SetMyEmail(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	return h.setEmail(c, userID, userID)
}

// SetEmail changes another user's email address.
func (h *UsersHandler) SetEmail(c echo.Context) error {
	actorID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	return h.setEmail(c, actorID, c.Param("id"))
}

func (h *UsersHandler) setEmail(c echo.Context, actorID, targetID string) error {
	var req SetEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetEmail(c.Request().Context(), actorID, targetID, req.Email); err != nil {
		return mapUserErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func mapUserErr(err error) error {
	var lastOwner *users.LastOwnerError
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, users.ErrNotAllowed):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, users.ErrInvalidEmail):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, users.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.As(err, &lastOwner):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
