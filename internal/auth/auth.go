// Package auth issues and verifies the JWTs that gate API requests.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// GenerateToken signs a token for userID with the given secret and TTL.
// It returns the signed token and its expiry time.
func GenerateToken(userID, secret string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	expires := time.Now().Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     userID,
		"user_id": userID,
		"iat":     time.Now().Unix(),
		"exp":     expires.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// JWTMiddleware returns the echo middleware enforcing bearer-token auth,
// skipping requests for which skipper returns true.
func JWTMiddleware(secret string, skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		Skipper:    skipper,
	})
}

// UserIDFromBearer verifies the Authorization header value directly, for
// routes where auth is optional and the middleware is skipped. Returns an
// empty id when no header is present.
func UserIDFromBearer(header, secret string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid claims")
	}
	if id, _ := claims["user_id"].(string); strings.TrimSpace(id) != "" {
		return id, nil
	}
	if sub, _ := claims["sub"].(string); strings.TrimSpace(sub) != "" {
		return sub, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user id claim")
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid claims")
	}
	if id, _ := claims["user_id"].(string); strings.TrimSpace(id) != "" {
		return id, nil
	}
	if sub, _ := claims["sub"].(string); strings.TrimSpace(sub) != "" {
		return sub, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user id claim")
}
