package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

func claimsFrom(c *fiber.Ctx) (*jwt.Token, jwt.MapClaims, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return nil, nil, errors.New("invalid token in context")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, nil, errors.New("invalid claims")
	}
	return token, claims, nil
}

// GetUserID extracts the user UUID from JWT claims in context.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	_, claims, err := claimsFrom(c)
	if err != nil {
		return uuid.Nil, err
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing sub claim")
	}
	return uuid.Parse(sub)
}

// SessionFrom rebuilds the caller's session from the verified token. It
// returns nil when the request carries no token.
func SessionFrom(c *fiber.Ctx) *rolegate.Session {
	token, claims, err := claimsFrom(c)
	if err != nil {
		return nil
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil
	}
	email, _ := claims["email"].(string)

	s := &rolegate.Session{
		AccessToken: token.Raw,
		User:        rolegate.Identity{ID: sub, Email: email},
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s
}
