// Package rolegate holds the authorization decision consulted by every
// protected view. It performs no I/O and never redirects; callers act on the
// returned Decision.
package rolegate

import "time"

// Input is everything the gate looks at. Now defaults to time.Now when zero.
type Input struct {
	Session   *Session
	Profile   *Profile
	Readiness Readiness
	Now       time.Time
}

// Decide returns Pending until readiness is Resolved, then Allow only when a
// live session, a matching active profile and a permitted role are all present.
// Anything incomplete or inconsistent is a Deny.
func Decide(in Input, req Requirement) Decision {
	if in.Readiness != Resolved {
		return Pending
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	if in.Session == nil || in.Session.Expired(now) {
		return Deny
	}
	p := in.Profile
	if p == nil || p.ID != in.Session.User.ID {
		return Deny
	}
	if !p.Role.Valid() || !p.IsActive {
		return Deny
	}
	if !req.permits(p.Role) {
		return Deny
	}
	if req.ScrumMaster && !p.IsScrumMaster && p.Role != RoleAdmin {
		return Deny
	}
	return Allow
}

const LoginPath = "/login"

// HomeFor is where a freshly signed-in user should land.
func HomeFor(role Role) string {
	switch role {
	case RoleAdmin:
		return "/admin"
	case RoleClient:
		return "/client"
	case RoleUser:
		return "/dashboard"
	default:
		return LoginPath
	}
}

// Redirect maps a decision to the navigation a page shell should perform.
// An empty string means render in place.
func Redirect(d Decision) string {
	if d == Deny {
		return LoginPath
	}
	return ""
}
