package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/config"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("User already registered")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrInvalidToken       = errors.New("Invalid Refresh Token")
	ErrInvalidResetToken  = errors.New("Token has expired or is invalid")
	ErrUserNotFound       = errors.New("User not found")
	ErrWeakPassword       = errors.New("Password should be at least 8 characters")
	ErrInvalidEmail       = errors.New("Signup requires a valid email")
)

const (
	minPasswordLength = 8
	resetTokenTTL     = time.Hour
)

type AuthService struct {
	db  *gorm.DB
	cfg *config.Config
	now func() time.Time
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	return &AuthService{db: db, cfg: cfg, now: time.Now}
}

// SignUp creates the identity and returns a session. Email confirmation is
// not enforced; there is no mail transport.
func (s *AuthService) SignUp(req *dto.SignUpRequest) (*dto.TokenResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	var existing models.User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := models.User{
		ID:               uuid.New(),
		Email:            email,
		Password:         string(hash),
		FullName:         strings.TrimSpace(req.FullName),
		EmailConfirmedAt: &now,
	}
	if err := s.db.Create(&user).Error; err != nil {
		// A concurrent sign-up for the same email won the unique index.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.generateTokenPair(&user)
}

func (s *AuthService) PasswordGrant(req *dto.PasswordGrantRequest) (*dto.TokenResponse, error) {
	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(&user)
}

// RefreshGrant rotates a refresh token. The presented token is revoked
// whether or not rotation succeeds.
func (s *AuthService) RefreshGrant(req *dto.RefreshGrantRequest) (*dto.TokenResponse, error) {
	tokenHash := hashToken(req.RefreshToken)

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ? AND revoked = false", tokenHash).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	res := s.db.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = false", stored.ID).
		Update("revoked", true)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", res.Error)
	}
	// A concurrent refresh already consumed it.
	if res.RowsAffected == 0 {
		return nil, ErrInvalidToken
	}
	if s.now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, ErrInvalidToken
	}

	return s.generateTokenPair(&user)
}

// Logout revokes every refresh token the user holds.
func (s *AuthService) Logout(userID uuid.UUID) error {
	return s.db.Model(&models.RefreshToken{}).
		Scopes(ForUser(userID)).
		Where("revoked = false").
		Update("revoked", true).Error
}

// Recover issues a one-time reset token. Unknown emails succeed silently so
// the endpoint does not reveal which addresses are registered.
func (s *AuthService) Recover(req *dto.RecoverRequest) error {
	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		slog.Info("password recovery requested for unknown email")
		return nil
	}

	raw, err := randomToken()
	if err != nil {
		return err
	}

	reset := models.PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(raw),
		ExpiresAt: s.now().Add(resetTokenTTL),
	}
	if err := s.db.Create(&reset).Error; err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	slog.Info("password recovery link issued",
		"user_id", user.ID.String(),
		"action", "recover",
		"link", s.recoveryLink(req.RedirectTo, raw),
	)
	return nil
}

func (s *AuthService) recoveryLink(redirectTo, token string) string {
	base := s.cfg.SiteURL + "/reset-password"
	if redirectTo != "" && strings.HasPrefix(redirectTo, s.cfg.SiteURL) {
		base = redirectTo
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "type=recovery&token=" + url.QueryEscape(token)
}

// VerifyRecovery consumes a reset token, sets the new password and returns a
// fresh session. Existing refresh tokens are revoked.
func (s *AuthService) VerifyRecovery(req *dto.VerifyRecoveryRequest) (*dto.TokenResponse, error) {
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user models.User
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordReset
		if err := tx.Where("token_hash = ? AND used_at IS NULL", hashToken(req.Token)).First(&reset).Error; err != nil {
			return ErrInvalidResetToken
		}
		if s.now().After(reset.ExpiresAt) {
			return ErrInvalidResetToken
		}

		now := s.now()
		res := tx.Model(&models.PasswordReset{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidResetToken
		}

		if err := tx.First(&user, "id = ?", reset.UserID).Error; err != nil {
			return ErrUserNotFound
		}
		if err := tx.Model(&user).Update("password", string(hash)).Error; err != nil {
			return err
		}
		return tx.Model(&models.RefreshToken{}).
			Scopes(ForUser(user.ID)).
			Update("revoked", true).Error
	})
	if err != nil {
		return nil, err
	}

	return s.generateTokenPair(&user)
}

func (s *AuthService) UpdatePassword(userID uuid.UUID, password string) (*dto.UserResponse, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, ErrUserNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.Model(&user).Update("password", string(hash)).Error; err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	resp := userResponse(&user)
	return &resp, nil
}

func (s *AuthService) GetUser(userID uuid.UUID) (*dto.UserResponse, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	resp := userResponse(&user)
	return &resp, nil
}

func (s *AuthService) generateTokenPair(user *models.User) (*dto.TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.JWTAccessExpiry)

	accessToken, err := s.generateAccessToken(user, now, expiresAt)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(user, now)
	if err != nil {
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.JWTAccessExpiry / time.Second),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: refreshToken,
		User:         userResponse(user),
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User, now, expiresAt time.Time) (string, error) {
	return SignAccessToken(s.cfg.JWTSecret, user, now, expiresAt)
}

// SignAccessToken issues the HS256 access token the JWT middleware accepts.
func SignAccessToken(secret string, user *models.User, now, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	if user.EmailConfirmedAt != nil {
		claims["email_verified_at"] = user.EmailConfirmedAt.UTC().Format(time.RFC3339)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (s *AuthService) generateRefreshToken(user *models.User, now time.Time) (string, error) {
	rawToken, err := randomToken()
	if err != nil {
		return "", err
	}

	record := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: now.Add(s.cfg.JWTRefreshExpiry),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func userResponse(user *models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:               user.ID,
		Email:            user.Email,
		EmailConfirmedAt: user.EmailConfirmedAt,
		CreatedAt:        user.CreatedAt,
	}
}

func randomToken() (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(rawBytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
