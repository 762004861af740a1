package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ecofood/foodshare/internal/model"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := NewAuthService("secret")
	want := model.Actor{ID: "acct-1", Role: model.RoleOrganization}

	token, err := auth.GenerateJWT(want, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	got, err := auth.VerifyJWT(token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if got != want {
		t.Errorf("actor = %+v, want %+v", got, want)
	}
}

func TestAuthService_Rejects(t *testing.T) {
	auth := NewAuthService("secret")
	actor := model.Actor{ID: "acct-1", Role: model.RoleDonor}

	expired, _ := auth.GenerateJWT(actor, -time.Minute)
	otherKey, _ := NewAuthService("other").GenerateJWT(actor, time.Hour)
	badRole, _ := auth.GenerateJWT(model.Actor{ID: "acct-1", Role: "admin"}, time.Hour)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "acct-1", "role": model.RoleDonor,
	}).SignedString([]byte("secret"))

	tests := map[string]string{
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong secret": otherKey,
		"unknown role": badRole,
		"no expiry":    noExpiry,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.VerifyJWT(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
