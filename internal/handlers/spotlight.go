package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/spotlight"
)

// SpotlightHandler serves the incremental user and room search.
type SpotlightHandler struct {
	aggregator *spotlight.Aggregator
	cfg        config.SpotlightConfig
	jwtSecret  string
	logger     *slog.Logger
}

func NewSpotlightHandler(log *slog.Logger, aggregator *spotlight.Aggregator, cfg config.SpotlightConfig, jwtSecret string) *SpotlightHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SpotlightHandler{
		aggregator: aggregator,
		cfg:        cfg,
		jwtSecret:  jwtSecret,
		logger:     log.With(slog.String("handler", "spotlight")),
	}
}

func (h *SpotlightHandler) Register(e *echo.Echo) {
	e.GET("/spotlight", h.Search)
}

// SearchResponse is the combined suggestion payload.
type SearchResponse struct {
	Users []spotlight.Candidate `json:"users"`
	Rooms []spotlight.Room      `json:"rooms"`
}

// Search runs the staged user search and the room search for the query term.
// Unauthenticated requests get only the anonymous room results.
func (h *SpotlightHandler) Search(c echo.Context) error {
	requesterID, err := auth.UserIDFromBearer(c.Request().Header.Get(echo.HeaderAuthorization), h.jwtSecret)
	if err != nil {
		return err
	}

	term := strings.TrimSpace(c.QueryParam("query"))
	if term == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	opts := h.options()
	ctx := c.Request().Context()
	resp := SearchResponse{Users: []spotlight.Candidate{}, Rooms: []spotlight.Room{}}

	if requesterID != "" {
		users, err := h.aggregator.SearchUsers(ctx, spotlight.Query{
			Term:        term,
			RoomID:      strings.TrimSpace(c.QueryParam("room_id")),
			RequesterID: requesterID,
			Exclude:     splitParam(c.QueryParam("exclude")),
			Budget:      opts.Limit,
		}, opts)
		if err != nil {
			if errors.Is(err, spotlight.ErrInvalidArgument) {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		resp.Users = users
	}

	rooms, err := h.aggregator.SearchRooms(ctx, requesterID, term, opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp.Rooms = rooms

	return c.JSON(http.StatusOK, resp)
}

func (h *SpotlightHandler) options() spotlight.Options {
	limit := h.cfg.SuggestionLimit
	if limit <= 0 {
		limit = config.DefaultSuggestionLimit
	}
	fields := splitParam(h.cfg.SearchFields)
	if len(fields) == 0 {
		fields = splitParam(config.DefaultSearchFields)
	}
	return spotlight.Options{
		Limit:            limit,
		SearchFields:     fields,
		SortByRealName:   h.cfg.UseRealName,
		AnonymousRead:    h.cfg.AnonymousRead,
		StoreLastMessage: h.cfg.StoreLastMessage,
	}
}

func splitParam(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
