package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/rooms"
)

// RoomsHandler serves room member actions.
type RoomsHandler struct {
	service *rooms.Service
	logger  *slog.Logger
}

func NewRoomsHandler(log *slog.Logger, service *rooms.Service) *RoomsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RoomsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "rooms")),
	}
}

func (h *RoomsHandler) Register(e *echo.Echo) {
	roomGroup := e.Group("/rooms")
	roomGroup.POST("/:id/leave", h.Leave)
	roomGroup.POST("/:id/mute", h.Mute)
	roomGroup.POST("/:id/unmute", h.Unmute)
	roomGroup.POST("/:id/kick", h.Remove)
}

// MemberActionRequest targets a member by username.
type MemberActionRequest struct {
	Username string `json:"username"`
}

// Leave removes the caller from the room.
func (h *RoomsHandler) Leave(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.service.Leave(c.Request().Context(), c.Param("id"), userID); err != nil {
		return mapRoomErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Mute adds the target username to the room's mute list.
func (h *RoomsHandler) Mute(c echo.Context) error {
	return h.memberAction(c, h.service.Mute)
}

// Unmute removes the target username from the room's mute list.
func (h *RoomsHandler) Unmute(c echo.Context) error {
	return h.memberAction(c, h.service.Unmute)
}

// Remove kicks the target username out of the room.
func (h *RoomsHandler) Remove(c echo.Context) error {
	return h.memberAction(c, h.service.Remove)
}

func (h *RoomsHandler) memberAction(c echo.Context, action func(ctx context.Context, roomID, actorID, username string) error) error {
	actorID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req MemberActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Username) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username is required")
	}
	if err := action(c.Request().Context(), c.Param("id"), actorID, req.Username); err != nil {
		return mapRoomErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func mapRoomErr(err error) error {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, rooms.ErrNotAllowed):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, rooms.ErrNotInRoom),
		errors.Is(err, rooms.ErrLastOwner),
		errors.Is(err, rooms.ErrInvalidRoomKind):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
