package session

import (
	"context"
	"errors"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrClosed          = errors.New("auth state owner closed")
)

type EventKind string

const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// Event is a session change emitted by the identity provider. Session is nil
// for EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *rolegate.Session
}

type SignUpParams struct {
	Email    string
	Password string
	FullName string
}

// IdentityProvider issues and revokes sessions. Listeners registered with
// OnAuthStateChange must be called in emission order from a single goroutine.
type IdentityProvider interface {
	GetSession(ctx context.Context) (*rolegate.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*rolegate.Session, error)
	SignUp(ctx context.Context, params SignUpParams) (*rolegate.Session, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, password string) error
	OnAuthStateChange(listener func(Event)) (unsubscribe func())
}

type FixProfileRequest struct {
	ID       string        `json:"id"`
	Email    string        `json:"email"`
	FullName string        `json:"full_name"`
	Role     rolegate.Role `json:"role"`
}

// ProfileStore reads and self-heals application profiles. GetProfile returns
// ErrProfileNotFound when the backend has no row for id.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*rolegate.Profile, error)
	FixProfile(ctx context.Context, req FixProfileRequest) (*rolegate.Profile, error)
}
