package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/services"
)

// ProfileLookup loads the stored profile for a user id.
type ProfileLookup interface {
	Get(id uuid.UUID) (*models.Profile, error)
}

// GateInput assembles the role gate input for the caller. The server has
// already resolved auth by the time a handler runs.
func GateInput(c *fiber.Ctx, profiles ProfileLookup) rolegate.Input {
	in := rolegate.Input{
		Session:   SessionFrom(c),
		Readiness: rolegate.Resolved,
		Now:       time.Now(),
	}
	if in.Session == nil {
		return in
	}

	if p, ok := c.Locals("profile").(*models.Profile); ok && p != nil {
		in.Profile = p.ToGate()
		return in
	}

	id, err := uuid.Parse(in.Session.User.ID)
	if err != nil {
		return in
	}
	p, err := profiles.Get(id)
	if err != nil {
		if !errors.Is(err, services.ErrProfileNotFound) {
			slog.Warn("profile lookup failed", "component", "role_gate", "user_id", id.String(), "error", err)
		}
		return in
	}
	c.Locals("profile", p)
	in.Profile = p.ToGate()
	return in
}

// RoleRequired admits the request only when the role gate allows view for
// the caller: 401 without a session, 403 on deny.
func RoleRequired(profiles ProfileLookup, rec metrics.Recorder, view string, req rolegate.Requirement) fiber.Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return func(c *fiber.Ctx) error {
		in := GateInput(c, profiles)
		if in.Session == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		d := rolegate.Decide(in, req)
		rec.RecordDecision(view, d.String())
		if d != rolegate.Allow {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Access denied",
			})
		}
		return c.Next()
	}
}

func AdminRequired(profiles ProfileLookup, rec metrics.Recorder) fiber.Handler {
	return RoleRequired(profiles, rec, "admin", rolegate.RequireRoles(rolegate.RoleAdmin))
}
