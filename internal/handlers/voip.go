package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/voip"
)

// VoipHandler serves the PBX connector endpoints.
type VoipHandler struct {
	service *voip.Service
	logger  *slog.Logger
}

func NewVoipHandler(log *slog.Logger, service *voip.Service) *VoipHandler {
	if log == nil {
		log = slog.Default()
	}
	return &VoipHandler{
		service: service,
		logger:  log.With(slog.String("handler", "voip")),
	}
}

func (h *VoipHandler) Register(e *echo.Echo) {
	voipGroup := e.Group("/voip")
	voipGroup.GET("/connector/version", h.ConnectorVersion)
	voipGroup.GET("/extensions", h.ListExtensions)
	voipGroup.GET("/extension", h.ExtensionDetails)
	voipGroup.GET("/registration", h.RegistrationInfo)
	voipGroup.GET("/registration/user/:id", h.RegistrationInfoForUser)
}

// ConnectorVersion returns the PBX software version.
func (h *VoipHandler) ConnectorVersion(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	version, err := h.service.ConnectorVersion(c.Request().Context(), userID)
	if err != nil {
		return mapVoipErr(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"version": version})
}

// ListExtensions returns every PBX extension.
func (h *VoipHandler) ListExtensions(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	extensions, err := h.service.ListExtensions(c.Request().Context(), userID)
	if err != nil {
		return mapVoipErr(err)
	}
	return c.JSON(http.StatusOK, extensions)
}

// ExtensionDetails returns the connector record for the extension query param.
func (h *VoipHandler) ExtensionDetails(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	details, err := h.service.ExtensionDetails(c.Request().Context(), userID, c.QueryParam("extension"))
	if err != nil {
		return mapVoipErr(err)
	}
	return c.JSON(http.StatusOK, details)
}

// RegistrationInfo returns signed registration info for an extension.
func (h *VoipHandler) RegistrationInfo(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	result, err := h.service.RegistrationInfoByExtension(c.Request().Context(), userID, c.QueryParam("extension"))
	if err != nil {
		return mapVoipErr(err)
	}
	return c.JSON(http.StatusOK, result)
}

// RegistrationInfoForUser returns registration info for the caller's own
// extension association.
func (h *VoipHandler) RegistrationInfoForUser(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	result, err := h.service.RegistrationInfoForUser(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return mapVoipErr(err)
	}
	return c.JSON(http.StatusOK, result)
}

func mapVoipErr(err error) error {
	switch {
	case errors.Is(err, voip.ErrNotAllowed):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, voip.ErrExtensionRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, voip.ErrExtensionNotFound),
		errors.Is(err, voip.ErrNoAssociation):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
