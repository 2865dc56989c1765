package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/messages"
)

// ThreadsHandler serves thread message retrieval.
type ThreadsHandler struct {
	service *messages.Service
	logger  *slog.Logger
}

func NewThreadsHandler(log *slog.Logger, service *messages.Service) *ThreadsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ThreadsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "threads")),
	}
}

func (h *ThreadsHandler) Register(e *echo.Echo) {
	e.GET("/threads/:id/messages", h.GetThreadMessages)
}

// GetThreadMessages returns the thread head and its replies, newest first.
func (h *ThreadsHandler) GetThreadMessages(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return err
	}

	page, err := h.service.GetThreadMessages(c.Request().Context(), userID, c.Param("id"), limit, skip)
	if err != nil {
		switch {
		case errors.Is(err, messages.ErrThreadsDisabled):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, messages.ErrNotAllowed):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, page)
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return value, nil
}
