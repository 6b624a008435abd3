package handlers

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/gofiber/fiber/v2"
)

// ViewsHandler exposes the role gate so page shells do not reimplement it.
type ViewsHandler struct {
	views    *rolegate.Registry
	profiles middleware.ProfileLookup
	metrics  metrics.Recorder
}

func NewViewsHandler(views *rolegate.Registry, profiles middleware.ProfileLookup, rec metrics.Recorder) *ViewsHandler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &ViewsHandler{views: views, profiles: profiles, metrics: rec}
}

func (h *ViewsHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"views": h.views.All()})
}

func (h *ViewsHandler) Decide(c *fiber.Ctx) error {
	path := c.Query("path")
	if !strings.HasPrefix(path, "/") {
		return badRequest(c, "path must start with /")
	}

	view, ok := h.views.Match(path)
	if !ok {
		return c.JSON(dto.DecideResponse{Path: path, Decision: rolegate.Allow.String()})
	}

	d := rolegate.Decide(middleware.GateInput(c, h.profiles), view.Requirement)
	h.metrics.RecordDecision(view.Name, d.String())

	return c.JSON(dto.DecideResponse{
		Path:     path,
		View:     view.Name,
		Decision: d.String(),
		Redirect: rolegate.Redirect(d),
	})
}

// Home returns the landing path for the caller's role.
func (h *ViewsHandler) Home(c *fiber.Ctx) error {
	in := middleware.GateInput(c, h.profiles)
	role := rolegate.Role("")
	if in.Profile != nil && in.Profile.IsActive {
		role = in.Profile.Role
	}
	return c.JSON(fiber.Map{"redirect": rolegate.HomeFor(role)})
}
