package services

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrProfileNotFound = errors.New("Profile not found")
	ErrForbidden       = errors.New("Forbidden")
	ErrInvalidRole     = errors.New("Invalid role")
)

type ProfileService struct {
	db           *gorm.DB
	rescueAdmins []string
}

func NewProfileService(db *gorm.DB, rescueAdmins []string) *ProfileService {
	return &ProfileService{db: db, rescueAdmins: rescueAdmins}
}

func (s *ProfileService) Get(id uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &p, nil
}

// GetForCaller returns a profile visible to the caller: their own, or any
// profile for an active admin.
func (s *ProfileService) GetForCaller(callerID, id uuid.UUID) (*models.Profile, error) {
	if callerID != id {
		caller, err := s.Get(callerID)
		if err != nil || !isActiveAdmin(caller) {
			return nil, ErrForbidden
		}
	}
	return s.Get(id)
}

// FixProfile creates the profile for id if it does not exist and returns the
// stored row. Repeated and concurrent calls converge on a single row. Email
// and the rescue check come from the identity record, never the request.
func (s *ProfileService) FixProfile(callerID uuid.UUID, req *dto.FixProfileRequest) (*models.Profile, error) {
	if req.ID == uuid.Nil {
		return nil, errors.New("Profile id is required")
	}

	callerIsAdmin := false
	if callerID != req.ID {
		caller, err := s.Get(callerID)
		if err != nil || !isActiveAdmin(caller) {
			return nil, ErrForbidden
		}
		callerIsAdmin = true
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	role, err := s.resolveRole(req.Role, &user, callerIsAdmin)
	if err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = user.FullName
	}
	p := models.Profile{
		ID:       user.ID,
		Email:    user.Email,
		FullName: fullName,
		Role:     string(role),
		IsActive: true,
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&p)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		slog.Info("profile created", "user_id", p.ID.String(), "role", p.Role, "action", "fix_profile")
	}

	return s.Get(req.ID)
}

// resolveRole decides the role a newly created profile gets. Self-service
// callers get user, or admin when their confirmed identity email is on the
// rescue list.
func (s *ProfileService) resolveRole(requested string, identity *models.User, callerIsAdmin bool) (rolegate.Role, error) {
	role := rolegate.RoleUser
	if requested != "" {
		r, err := rolegate.ParseRole(requested)
		if err != nil {
			return "", ErrInvalidRole
		}
		role = r
	}

	if callerIsAdmin {
		return role, nil
	}
	if identity.EmailConfirmedAt != nil && slices.Contains(s.rescueAdmins, normalizeEmail(identity.Email)) {
		return rolegate.RoleAdmin, nil
	}
	return rolegate.RoleUser, nil
}

func (s *ProfileService) List(role string, limit, offset int) ([]models.Profile, int64, error) {
	q := s.db.Model(&models.Profile{})
	if role != "" {
		q = q.Where("role = ?", role)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	var profiles []models.Profile
	if err := q.Scopes(Paginate(limit, offset)).Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, total, nil
}

func (s *ProfileService) Update(id uuid.UUID, req *dto.UpdateProfileRequest) (*models.Profile, error) {
	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		r, err := rolegate.ParseRole(*req.Role)
		if err != nil {
			return nil, ErrInvalidRole
		}
		updates["role"] = string(r)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsScrumMaster != nil {
		updates["is_scrum_master"] = *req.IsScrumMaster
	}

	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return p, nil
	}
	if err := s.db.Model(p).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.Get(id)
}

// ProfileGrant is the shape Provision leaves a profile in. A nil
// IsScrumMaster keeps the stored flag.
type ProfileGrant struct {
	Role          rolegate.Role
	IsActive      bool
	IsScrumMaster *bool
}

// Provision applies g to the profile of the account with email in a single
// upsert, creating the profile from the identity record when missing.
func (s *ProfileService) Provision(email string, g ProfileGrant) (*models.Profile, error) {
	if !g.Role.Valid() {
		return nil, ErrInvalidRole
	}

	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	p := models.Profile{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     string(g.Role),
		IsActive: g.IsActive,
	}
	set := map[string]interface{}{"role": p.Role, "is_active": p.IsActive}
	if g.IsScrumMaster != nil {
		p.IsScrumMaster = *g.IsScrumMaster
		set["is_scrum_master"] = p.IsScrumMaster
	}

	// Select("*") writes false bools instead of the column defaults.
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(set),
	}).Select("*").Create(&p).Error
	if err != nil {
		return nil, fmt.Errorf("failed to provision profile: %w", err)
	}
	return s.Get(user.ID)
}

func isActiveAdmin(p *models.Profile) bool {
	return p != nil && p.IsActive && p.Role == string(rolegate.RoleAdmin)
}
