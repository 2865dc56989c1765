package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateToken(t *testing.T) {
	secret := "test-secret-key-for-auth"
	userID := "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

	signed, expires, err := GenerateToken(userID, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if expires.Before(time.Now().Add(59 * time.Minute)) {
		t.Error("token expires too soon")
	}

	parsed, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("failed to parse JWT: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("expected MapClaims")
	}
	if sub, _ := claims["sub"].(string); sub != userID {
		t.Errorf("expected sub=%s, got=%s", userID, sub)
	}
	if uid, _ := claims["user_id"].(string); uid != userID {
		t.Errorf("expected user_id=%s, got=%s", userID, uid)
	}
	exp, _ := claims["exp"].(float64)
	if exp == 0 {
		t.Fatal("expected non-zero exp")
	}
}

func TestGenerateToken_EmptySecret(t *testing.T) {
	_, _, err := GenerateToken("user-123", "", time.Hour)
	if err == nil {
		t.Fatal("expected error for empty secret")
	}
	if !strings.Contains(err.Error(), "secret") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerateToken_EmptyUserID(t *testing.T) {
	_, _, err := GenerateToken("  ", "some-secret", time.Hour)
	if err == nil {
		t.Fatal("expected error for empty user ID")
	}
}
