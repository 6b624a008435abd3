package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService AuthBackend
}

func NewAuthHandler(authService AuthBackend) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.SignUp(&req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrWeakPassword):
			return badRequest(c, err.Error())
		}
		return internalError(c)
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Token dispatches on grant_type like the GoTrue token endpoint.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	switch c.Query("grant_type") {
	case "password":
		return h.passwordGrant(c)
	case "refresh_token":
		return h.refreshGrant(c)
	default:
		return badRequest(c, "Unsupported grant type")
	}
}

func (h *AuthHandler) passwordGrant(c *fiber.Ctx) error {
	var req dto.PasswordGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.PasswordGrant(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return badRequest(c, err.Error())
		}
		return internalError(c)
	}

	return c.JSON(resp)
}

func (h *AuthHandler) refreshGrant(c *fiber.Ctx) error {
	var req dto.RefreshGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.RefreshGrant(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			return badRequest(c, err.Error())
		}
		return internalError(c)
	}

	return c.JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	if err := h.authService.Logout(userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to logout",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) Recover(c *fiber.Ctx) error {
	var req dto.RecoverRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.authService.Recover(&req); err != nil {
		return internalError(c)
	}

	return c.JSON(dto.MessageResponse{Message: "If the email is registered, a recovery link has been sent"})
}

func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRecoveryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.VerifyRecovery(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidResetToken) || errors.Is(err, services.ErrWeakPassword) {
			return badRequest(c, err.Error())
		}
		return internalError(c)
	}

	return c.JSON(resp)
}

func (h *AuthHandler) GetUser(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	user, err := h.authService.GetUser(userID)
	if err != nil {
		return notFound(c, err.Error())
	}
	return c.JSON(user)
}

func (h *AuthHandler) UpdateUser(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := h.authService.UpdatePassword(userID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWeakPassword):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrUserNotFound):
			return notFound(c, err.Error())
		}
		return internalError(c)
	}

	return c.JSON(user)
}
