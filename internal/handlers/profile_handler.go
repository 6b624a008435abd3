package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ProfileHandler struct {
	profileService ProfileBackend
}

func NewProfileHandler(profileService ProfileBackend) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	callerID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid profile id")
	}

	p, err := h.profileService.GetForCaller(callerID, id)
	if err != nil {
		return profileError(c, err)
	}
	return c.JSON(p)
}

// FixProfile is the self-healing endpoint: it creates the caller's missing
// profile and returns the stored row.
func (h *ProfileHandler) FixProfile(c *fiber.Ctx) error {
	callerID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.FixProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.ID == uuid.Nil {
		req.ID = callerID
	}

	p, err := h.profileService.FixProfile(callerID, &req)
	if err != nil {
		return profileError(c, err)
	}
	return c.JSON(p)
}

func (h *ProfileHandler) List(c *fiber.Ctx) error {
	profiles, total, err := h.profileService.List(c.Query("role"), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return internalError(c)
	}
	return c.JSON(fiber.Map{"profiles": profiles, "total": total})
}

func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid profile id")
	}

	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	p, err := h.profileService.Update(id, &req)
	if err != nil {
		return profileError(c, err)
	}
	return c.JSON(p)
}

func profileError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrProfileNotFound), errors.Is(err, services.ErrUserNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, services.ErrForbidden):
		return forbidden(c, err.Error())
	case errors.Is(err, services.ErrInvalidRole):
		return badRequest(c, err.Error())
	}
	return internalError(c)
}

// Me returns the profile the role gate already loaded for the caller.
func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	if p, ok := c.Locals("profile").(*models.Profile); ok && p != nil {
		return c.JSON(p)
	}
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, err := h.profileService.Get(userID)
	if err != nil {
		return profileError(c, err)
	}
	return c.JSON(p)
}
