package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/rooms"
	"github.com/parlorchat/parlor/internal/users"
	"github.com/parlorchat/parlor/internal/voip"
)

func TestSplitParam(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", []string{}},
		{"username,name", []string{"username", "name"}},
		{" alice , bob ,", []string{"alice", "bob"}},
		{",,", []string{}},
	}
	for _, tc := range cases {
		if got := splitParam(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitParam(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestQueryInt(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=abc", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	value, err := queryInt(c, "limit", 0)
	if err != nil || value != 25 {
		t.Fatalf("limit: got %d, %v", value, err)
	}
	value, err = queryInt(c, "skip", 7)
	if err != nil || value != 7 {
		t.Fatalf("fallback: got %d, %v", value, err)
	}
	if _, err := queryInt(c, "bad", 0); err == nil {
		t.Fatal("expected error for non-integer value")
	}
}

func TestErrorHandlerRendersBody(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	ErrorHandler(slog.New(slog.DiscardHandler))(echo.NewHTTPError(http.StatusNotFound, "no such room"), c)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "no such room") {
		t.Fatalf("body %q missing message", body)
	}
}

func TestSpotlightSearchRequiresQuery(t *testing.T) {
	e := echo.New()
	h := NewSpotlightHandler(nil, nil, config.SpotlightConfig{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/spotlight?query=%20", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if got := httpStatus(t, h.Search(c)); got != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank query, got %d", got)
	}
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	return httpErr.Code
}

func TestMapUserErr(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{users.ErrUserNotFound, http.StatusNotFound},
		{users.ErrNotAllowed, http.StatusForbidden},
		{users.ErrInvalidEmail, http.StatusBadRequest},
		{users.ErrEmailTaken, http.StatusConflict},
		{users.ErrRateLimited, http.StatusTooManyRequests},
		{&users.LastOwnerError{Rooms: []string{"general"}}, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := httpStatus(t, mapUserErr(tc.err)); got != tc.want {
			t.Errorf("mapUserErr(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMapRoomErr(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{rooms.ErrRoomNotFound, http.StatusNotFound},
		{rooms.ErrNotAllowed, http.StatusForbidden},
		{rooms.ErrNotInRoom, http.StatusBadRequest},
		{rooms.ErrLastOwner, http.StatusBadRequest},
		{rooms.ErrInvalidRoomKind, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if got := httpStatus(t, mapRoomErr(tc.err)); got != tc.want {
			t.Errorf("mapRoomErr(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMapVoipErr(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{voip.ErrNotAllowed, http.StatusForbidden},
		{voip.ErrExtensionRequired, http.StatusBadRequest},
		{voip.ErrExtensionNotFound, http.StatusNotFound},
		{voip.ErrNoAssociation, http.StatusNotFound},
	}
	for _, tc := range cases {
		if got := httpStatus(t, mapVoipErr(tc.err)); got != tc.want {
			t.Errorf("mapVoipErr(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
