package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

// Profile shares its primary key with the identity user id.
type Profile struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email         string    `gorm:"size:255;index" json:"email"`
	FullName      string    `gorm:"size:255" json:"full_name"`
	Role          string    `gorm:"size:20;not null;default:'user';index" json:"role"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	IsScrumMaster bool      `gorm:"not null;default:false" json:"is_scrum_master"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Profile) ToGate() *rolegate.Profile {
	return &rolegate.Profile{
		ID:            p.ID.String(),
		Email:         p.Email,
		FullName:      p.FullName,
		Role:          rolegate.Role(p.Role),
		IsActive:      p.IsActive,
		IsScrumMaster: p.IsScrumMaster,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
