package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Notification struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_notifications_user_read" json:"user_id"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Type      string         `gorm:"size:50;default:'info'" json:"type"`
	Data      datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"data"`
	Read      bool           `gorm:"not null;default:false;index:idx_notifications_user_read" json:"read"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

const (
	AccessPending  = "pending"
	AccessApproved = "approved"
	AccessRejected = "rejected"
)

type AccessRequest struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Resource   string     `gorm:"size:255;not null" json:"resource"`
	Reason     string     `gorm:"type:text" json:"reason"`
	Status     string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	AdminNote  string     `gorm:"type:text" json:"admin_note,omitempty"`
	ResolvedBy *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
