package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

type HealthHandler struct {
	views *rolegate.Registry
	ping  func() error
}

func NewHealthHandler(views *rolegate.Registry, ping func() error) *HealthHandler {
	return &HealthHandler{views: views, ping: ping}
}

// Check answers 503 while the database is unreachable so load balancers
// stop routing to this instance.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        "ok",
		ViewCount: len(h.views.All()),
	}
	if err := h.ping(); err != nil {
		resp.Status = "degraded"
		resp.DB = "unhealthy: " + err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
