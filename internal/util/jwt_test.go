package util

import (
	"errors"
	"onenote_feedback/internal/model"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func TestParseJWT(t *testing.T) {
	token, err := GenerateJWT(7, model.Student, "s@example.com", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseJWT(token, testSecret)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 7 || claims.Role != model.Student {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Error("token accepted with wrong secret")
	}
}

func TestParseJWTRejectsOAuthState(t *testing.T) {
	state, err := GenerateOAuthState(7, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseJWT(state, testSecret); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ParseJWT(state) error = %v, want ErrUnauthorized", err)
	}

	if id, err := ParseOAuthState(state, testSecret); err != nil || id != 7 {
		t.Fatalf("ParseOAuthState() = %d, %v", id, err)
	}
}

func TestParseJWTRejectsMissingUser(t *testing.T) {
	claims := &Claims{
		Role: model.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseJWT(token, testSecret); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ParseJWT() error = %v, want ErrUnauthorized", err)
	}
}
