package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/config"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestResolveRole(t *testing.T) {
	s := NewProfileService(nil, []string{"rescue@example.com"})
	confirmed := time.Now()
	identity := func(email string, verified bool) *models.User {
		u := &models.User{ID: uuid.New(), Email: email}
		if verified {
			u.EmailConfirmedAt = &confirmed
		}
		return u
	}

	tests := []struct {
		name      string
		requested string
		identity  *models.User
		admin     bool
		want      rolegate.Role
		wantErr   error
	}{
		{"default user", "", identity("a@example.com", true), false, rolegate.RoleUser, nil},
		{"self escalation ignored", "admin", identity("a@example.com", true), false, rolegate.RoleUser, nil},
		{"rescue list", "", identity(" Rescue@Example.com ", true), false, rolegate.RoleAdmin, nil},
		{"rescue needs confirmed email", "", identity("rescue@example.com", false), false, rolegate.RoleUser, nil},
		{"admin may assign", "client", identity("c@example.com", true), true, rolegate.RoleClient, nil},
		{"unknown role", "owner", identity("a@example.com", true), false, "", ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.resolveRole(tt.requested, tt.identity, tt.admin)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("role = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildNotification(t *testing.T) {
	uid := uuid.New()

	n, err := buildNotification(&dto.CreateNotificationRequest{UserID: uid, Title: " Hi ", Data: map[string]any{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	if n.Title != "Hi" || n.Type != "info" || n.Read {
		t.Errorf("notification = %+v", n)
	}
	if string(n.Data) != `{"k":"v"}` {
		t.Errorf("data = %s", n.Data)
	}

	if _, err := buildNotification(&dto.CreateNotificationRequest{Title: "no user"}); err == nil {
		t.Error("expected error without user_id")
	}
}

func TestRecoveryLink(t *testing.T) {
	s := NewAuthService(nil, &config.Config{SiteURL: "https://portal.example.com"})

	got := s.recoveryLink("", "tok/en")
	if got != "https://portal.example.com/reset-password?type=recovery&token=tok%2Fen" {
		t.Errorf("default link = %q", got)
	}

	got = s.recoveryLink("https://portal.example.com/auth/reset?x=1", "t")
	if got != "https://portal.example.com/auth/reset?x=1&type=recovery&token=t" {
		t.Errorf("redirect link = %q", got)
	}

	got = s.recoveryLink("https://evil.example.net/steal", "t")
	if !strings.HasPrefix(got, "https://portal.example.com/reset-password") {
		t.Errorf("foreign redirect accepted: %q", got)
	}
}

func TestSignAccessToken(t *testing.T) {
	confirmed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	user := &models.User{ID: uuid.New(), Email: "a@example.com", EmailConfirmedAt: &confirmed}
	now := time.Now()

	raw, err := SignAccessToken("secret", user, now, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	tok, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["sub"] != user.ID.String() || claims["email"] != "a@example.com" {
		t.Errorf("claims = %v", claims)
	}
	if claims["email_verified_at"] != "2026-03-01T00:00:00Z" {
		t.Errorf("email_verified_at = %v", claims["email_verified_at"])
	}
}

func TestHashToken(t *testing.T) {
	if hashToken("a") == hashToken("b") {
		t.Error("distinct tokens must hash differently")
	}
	if len(hashToken("a")) != 64 {
		t.Error("hash must be 64 hex chars")
	}
}
