package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("Notification not found")

type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) Create(req *dto.CreateNotificationRequest) (*models.Notification, error) {
	return s.create(s.db, req)
}

func (s *NotificationService) create(tx *gorm.DB, req *dto.CreateNotificationRequest) (*models.Notification, error) {
	n, err := buildNotification(req)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

func buildNotification(req *dto.CreateNotificationRequest) (*models.Notification, error) {
	if req.UserID == uuid.Nil || strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("user_id and title are required")
	}
	kind := req.Type
	if kind == "" {
		kind = "info"
	}

	data := datatypes.JSON("{}")
	if len(req.Data) > 0 {
		b, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid notification data: %w", err)
		}
		data = datatypes.JSON(b)
	}

	return &models.Notification{
		ID:      uuid.New(),
		UserID:  req.UserID,
		Title:   strings.TrimSpace(req.Title),
		Message: req.Message,
		Type:    kind,
		Data:    data,
	}, nil
}

func (s *NotificationService) List(userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	q := s.db.Scopes(ForUser(userID))
	if unreadOnly {
		q = q.Where("read = false")
	}

	var out []models.Notification
	if err := q.Scopes(Paginate(limit, offset)).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationService) UnreadCount(userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.Model(&models.Notification{}).
		Scopes(ForUser(userID)).
		Where("read = false").
		Count(&n).Error
	return n, err
}

func (s *NotificationService) MarkRead(userID, id uuid.UUID) error {
	res := s.db.Model(&models.Notification{}).
		Scopes(ForUser(userID)).
		Where("id = ?", id).
		Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(userID uuid.UUID) (int64, error) {
	res := s.db.Model(&models.Notification{}).
		Scopes(ForUser(userID)).
		Where("read = false").
		Update("read", true)
	return res.RowsAffected, res.Error
}
