package handlers

import (
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/services"
)

// AuthBackend serves the /auth/v1 identity endpoints.
type AuthBackend interface {
	SignUp(req *dto.SignUpRequest) (*dto.TokenResponse, error)
	PasswordGrant(req *dto.PasswordGrantRequest) (*dto.TokenResponse, error)
	RefreshGrant(req *dto.RefreshGrantRequest) (*dto.TokenResponse, error)
	Logout(userID uuid.UUID) error
	Recover(req *dto.RecoverRequest) error
	VerifyRecovery(req *dto.VerifyRecoveryRequest) (*dto.TokenResponse, error)
	UpdatePassword(userID uuid.UUID, password string) (*dto.UserResponse, error)
	GetUser(userID uuid.UUID) (*dto.UserResponse, error)
}

type ProfileBackend interface {
	Get(id uuid.UUID) (*models.Profile, error)
	GetForCaller(callerID, id uuid.UUID) (*models.Profile, error)
	FixProfile(callerID uuid.UUID, req *dto.FixProfileRequest) (*models.Profile, error)
	List(role string, limit, offset int) ([]models.Profile, int64, error)
	Update(id uuid.UUID, req *dto.UpdateProfileRequest) (*models.Profile, error)
}

type AccessRequestBackend interface {
	Create(userID uuid.UUID, req *dto.CreateAccessRequest) (*models.AccessRequest, bool, error)
	List(status string, limit, offset int) ([]models.AccessRequest, error)
	ListMine(userID uuid.UUID) ([]models.AccessRequest, error)
	Resolve(adminID, id uuid.UUID, req *dto.ResolveAccessRequest) (*models.AccessRequest, error)
}

var (
	_ AuthBackend          = (*services.AuthService)(nil)
	_ ProfileBackend       = (*services.ProfileService)(nil)
	_ AccessRequestBackend = (*services.AccessRequestService)(nil)
)
