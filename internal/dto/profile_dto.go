package dto

import "github.com/google/uuid"

type FixProfileRequest struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}

type UpdateProfileRequest struct {
	FullName      *string `json:"full_name,omitempty"`
	Role          *string `json:"role,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
	IsScrumMaster *bool   `json:"is_scrum_master,omitempty"`
}

type DecideResponse struct {
	Path     string `json:"path"`
	View     string `json:"view,omitempty"`
	Decision string `json:"decision"`
	Redirect string `json:"redirect,omitempty"`
}
