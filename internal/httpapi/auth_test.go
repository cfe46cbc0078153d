package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"possystem/backend/internal/auth"
	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

type authenticatorStub struct {
	password string
	role     domain.Role
	id       int64
}

func (s authenticatorStub) EmployeeLogin(_ context.Context, firstName string, lastName string, password string) (domain.Role, int64, error) {
	if firstName != "Ada" || lastName != "Admin" {
		return "", 0, store.NotFound(store.EntityEmployee, firstName+" "+lastName)
	}
	if password != s.password {
		return "", 0, auth.ErrIncorrectPassword
	}
	return s.role, s.id, nil
}

func TestLoginIssuesTokenCarryingEmployee(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, authenticatorStub{password: "admin123", role: domain.RoleAdmin, id: 7})

	resp, err := manager.Login(context.Background(), domain.LoginRequest{FirstName: "Ada", LastName: "Admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.EmployeeID != 7 || resp.Role != domain.RoleAdmin || resp.AccessToken == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.EmployeeID != 7 || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginMasksFailureReason(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, authenticatorStub{password: "admin123", role: domain.RoleAdmin, id: 7})

	_, wrongPassword := manager.Login(context.Background(), domain.LoginRequest{FirstName: "Ada", LastName: "Admin", Password: "nope"})
	_, unknown := manager.Login(context.Background(), domain.LoginRequest{FirstName: "Nobody", LastName: "Here", Password: "admin123"})
	if !errors.Is(wrongPassword, errInvalidCredentials) || !errors.Is(unknown, errInvalidCredentials) {
		t.Fatalf("expected both failures to read as invalid credentials, got %v / %v", wrongPassword, unknown)
	}
}

func TestParseTokenRejectsForeignOrExpiredTokens(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, authenticatorStub{})
	other := NewAuthManager("other-secret", time.Hour, authenticatorStub{})

	foreign, err := other.sign(1, domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := manager.sign(1, domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "ada",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}
	named, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(named); err == nil {
		t.Fatalf("expected non-numeric subject to be rejected")
	}
}
