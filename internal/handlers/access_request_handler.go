package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AccessRequestHandler struct {
	accessService AccessRequestBackend
}

func NewAccessRequestHandler(accessService AccessRequestBackend) *AccessRequestHandler {
	return &AccessRequestHandler{accessService: accessService}
}

func (h *AccessRequestHandler) Create(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateAccessRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ar, created, err := h.accessService.Create(userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrResourceRequired) {
			return badRequest(c, err.Error())
		}
		return internalError(c)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(ar)
}

func (h *AccessRequestHandler) ListMine(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	out, err := h.accessService.ListMine(userID)
	if err != nil {
		return internalError(c)
	}
	return c.JSON(fiber.Map{"access_requests": out})
}

func (h *AccessRequestHandler) List(c *fiber.Ctx) error {
	out, err := h.accessService.List(c.Query("status"), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return internalError(c)
	}
	return c.JSON(fiber.Map{"access_requests": out})
}

func (h *AccessRequestHandler) Resolve(c *fiber.Ctx) error {
	adminID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid access request id")
	}

	var req dto.ResolveAccessRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ar, err := h.accessService.Resolve(adminID, id, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			return badRequest(c, err.Error())
		case errors.Is(err, services.ErrAccessRequestNotFound):
			return notFound(c, err.Error())
		case errors.Is(err, services.ErrAlreadyResolved):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return internalError(c)
	}
	return c.JSON(ar)
}
