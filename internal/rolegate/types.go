package rolegate

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleClient Role = "client"
)

// ParseRole accepts only the three known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleUser, RoleClient:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Readiness tracks whether the auth bootstrap has settled.
type Readiness int32

const (
	Unresolved Readiness = iota
	Resolving
	Resolved
)

func (r Readiness) String() string {
	switch r {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	default:
		return "invalid"
	}
}

type Decision int

const (
	Pending Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	default:
		return "deny"
	}
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Identity is the minimal provider-side user record carried by a Session.
type Identity struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	VerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

// Session is replaced wholesale on sign-in and refresh, never mutated in place.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Role          Role      `json:"role"`
	IsActive      bool      `json:"is_active"`
	IsScrumMaster bool      `json:"is_scrum_master"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Requirement describes who may see a protected view.
type Requirement struct {
	Roles       []Role `yaml:"roles" json:"roles"`
	ScrumMaster bool   `yaml:"scrum_master" json:"scrum_master"`
}

func RequireRoles(roles ...Role) Requirement {
	return Requirement{Roles: roles}
}

func (r Requirement) permits(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}
