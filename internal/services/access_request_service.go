package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAccessRequestNotFound = errors.New("Access request not found")
	ErrAlreadyResolved       = errors.New("Access request already resolved")
	ErrInvalidStatus         = errors.New("Status must be approved or rejected")
	ErrResourceRequired      = errors.New("Resource is required")
)

type AccessRequestService struct {
	db            *gorm.DB
	notifications *NotificationService
}

func NewAccessRequestService(db *gorm.DB, notifications *NotificationService) *AccessRequestService {
	return &AccessRequestService{db: db, notifications: notifications}
}

// Create files a pending request. An existing pending request for the same
// resource is returned instead of a duplicate. Admins are notified only for
// new requests.
func (s *AccessRequestService) Create(userID uuid.UUID, req *dto.CreateAccessRequest) (*models.AccessRequest, bool, error) {
	resource := strings.TrimSpace(req.Resource)
	if resource == "" {
		return nil, false, ErrResourceRequired
	}

	var existing models.AccessRequest
	err := s.db.Scopes(ForUser(userID)).
		Where("resource = ? AND status = ?", resource, models.AccessPending).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up access request: %w", err)
	}

	ar := models.AccessRequest{
		ID:       uuid.New(),
		UserID:   userID,
		Resource: resource,
		Reason:   strings.TrimSpace(req.Reason),
		Status:   models.AccessPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ar).Error; err != nil {
			return err
		}

		var admins []uuid.UUID
		if err := tx.Model(&models.Profile{}).
			Where("role = ? AND is_active = true", string(rolegate.RoleAdmin)).
			Pluck("id", &admins).Error; err != nil {
			return err
		}
		for _, adminID := range admins {
			if _, err := s.notifications.create(tx, &dto.CreateNotificationRequest{
				UserID:  adminID,
				Title:   "New access request",
				Message: "Access requested for " + resource,
				Type:    "access_request",
				Data:    map[string]any{"access_request_id": ar.ID.String(), "resource": resource},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Lost a race with a concurrent create for the same resource.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if e := s.db.Scopes(ForUser(userID)).
				Where("resource = ? AND status = ?", resource, models.AccessPending).
				First(&existing).Error; e == nil {
				return &existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create access request: %w", err)
	}

	slog.Info("access request created", "user_id", userID.String(), "resource", resource, "action", "access_request")
	return &ar, true, nil
}

func (s *AccessRequestService) List(status string, limit, offset int) ([]models.AccessRequest, error) {
	q := s.db.Model(&models.AccessRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.AccessRequest
	if err := q.Scopes(Paginate(limit, offset)).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	return out, nil
}

func (s *AccessRequestService) ListMine(userID uuid.UUID) ([]models.AccessRequest, error) {
	var out []models.AccessRequest
	if err := s.db.Scopes(ForUser(userID)).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	return out, nil
}

// Resolve approves or rejects a pending request exactly once and notifies
// the requester.
func (s *AccessRequestService) Resolve(adminID, id uuid.UUID, req *dto.ResolveAccessRequest) (*models.AccessRequest, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != models.AccessApproved && status != models.AccessRejected {
		return nil, ErrInvalidStatus
	}

	var ar models.AccessRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ar, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccessRequestNotFound
			}
			return err
		}

		now := time.Now()
		res := tx.Model(&models.AccessRequest{}).
			Where("id = ? AND status = ?", id, models.AccessPending).
			Updates(map[string]interface{}{
				"status":      status,
				"admin_note":  strings.TrimSpace(req.AdminNote),
				"resolved_by": adminID,
				"resolved_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyResolved
		}

		if _, err := s.notifications.create(tx, &dto.CreateNotificationRequest{
			UserID:  ar.UserID,
			Title:   "Access request " + status,
			Message: "Your request for " + ar.Resource + " was " + status,
			Type:    "access_request",
			Data:    map[string]any{"access_request_id": ar.ID.String(), "status": status},
		}); err != nil {
			return err
		}

		return tx.First(&ar, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	slog.Info("access request resolved",
		"user_id", ar.UserID.String(),
		"resource", ar.Resource,
		"status", status,
		"action", "access_resolve",
	)
	return &ar, nil
}
