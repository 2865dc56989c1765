package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/commands"
)

// CommandsHandler serves slash-command listing, dispatch, and previews.
type CommandsHandler struct {
	registry *commands.Registry
	perms    PermissionChecker
	logger   *slog.Logger
}

// PermissionChecker gates permission-bound commands.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission, roomID string) (bool, error)
}

func NewCommandsHandler(log *slog.Logger, registry *commands.Registry, perms PermissionChecker) *CommandsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CommandsHandler{
		registry: registry,
		perms:    perms,
		logger:   log.With(slog.String("handler", "commands")),
	}
}

func (h *CommandsHandler) Register(e *echo.Echo) {
	commandGroup := e.Group("/commands")
	commandGroup.GET("", h.List)
	commandGroup.POST("/run", h.Run)
	commandGroup.POST("/preview", h.Previews)
	commandGroup.POST("/preview/execute", h.ExecutePreview)
}

// CommandInfo describes a registered command to clients.
type CommandInfo struct {
	Command         string `json:"command"`
	Params          string `json:"params,omitempty"`
	Description     string `json:"description,omitempty"`
	Permission      string `json:"permission,omitempty"`
	ProvidesPreview bool   `json:"provides_preview"`
}

// List returns every registered command.
func (h *CommandsHandler) List(c echo.Context) error {
	if _, err := auth.UserIDFromContext(c); err != nil {
		return err
	}
	registered := h.registry.List()
	out := make([]CommandInfo, 0, len(registered))
	for _, cmd := range registered {
		out = append(out, CommandInfo{
			Command:         cmd.Name,
			Params:          cmd.Params,
			Description:     cmd.Description,
			Permission:      cmd.Permission,
			ProvidesPreview: cmd.ProvidesPreview,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// RunRequest is the slash-command dispatch payload.
type RunRequest struct {
	Command   string `json:"command"`
	Params    string `json:"params"`
	RoomID    string `json:"room_id"`
	TriggerID string `json:"trigger_id"`
}

// PreviewRequest adds the selected preview item to a dispatch payload.
type PreviewRequest struct {
	RunRequest
	Item commands.PreviewItem `json:"item"`
}

// Run dispatches one slash command. Unknown commands are rejected here even
// though the registry itself treats them as a no-op.
func (h *CommandsHandler) Run(c echo.Context) error {
	userID, req, err := h.bindRun(c)
	if err != nil {
		return err
	}
	if err := h.registry.Run(c.Request().Context(), req.Command, h.invocation(req, userID)); err != nil {
		return mapCommandErr(err)
	}
	return c.NoContent(http.StatusOK)
}

// Previews returns the preview items for a command invocation.
func (h *CommandsHandler) Previews(c echo.Context) error {
	userID, req, err := h.bindRun(c)
	if err != nil {
		return err
	}
	result, err := h.registry.Previews(c.Request().Context(), req.Command, h.invocation(req, userID))
	if err != nil {
		return mapCommandErr(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ExecutePreview runs the selection callback for a chosen preview item.
func (h *CommandsHandler) ExecutePreview(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.authorize(c, userID, req.RunRequest); err != nil {
		return err
	}
	if err := h.registry.ExecutePreview(c.Request().Context(), req.Command, h.invocation(req.RunRequest, userID), req.Item); err != nil {
		return mapCommandErr(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *CommandsHandler) bindRun(c echo.Context) (string, RunRequest, error) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return "", RunRequest{}, err
	}
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return "", RunRequest{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.authorize(c, userID, req); err != nil {
		return "", RunRequest{}, err
	}
	return userID, req, nil
}

// authorize rejects unknown commands and enforces the command's permission.
func (h *CommandsHandler) authorize(c echo.Context, userID string, req RunRequest) error {
	cmd, ok := h.registry.Lookup(req.Command)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid command")
	}
	if cmd.Permission == "" {
		return nil
	}
	allowed, err := h.perms.HasPermission(c.Request().Context(), userID, cmd.Permission, req.RoomID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !allowed {
		return echo.NewHTTPError(http.StatusForbidden, "you are not allowed to run this command")
	}
	return nil
}

func (h *CommandsHandler) invocation(req RunRequest, userID string) commands.Invocation {
	return commands.Invocation{
		Command:   req.Command,
		Params:    req.Params,
		RoomID:    req.RoomID,
		UserID:    userID,
		TriggerID: req.TriggerID,
	}
}

func mapCommandErr(err error) error {
	switch {
	case errors.Is(err, commands.ErrRoomRequired),
		errors.Is(err, commands.ErrInvalidPreviewItem),
		errors.Is(err, commands.ErrUnknownCommand),
		errors.Is(err, commands.ErrNoPreview):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
