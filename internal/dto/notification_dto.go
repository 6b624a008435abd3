package dto

import "github.com/google/uuid"

type CreateNotificationRequest struct {
	UserID  uuid.UUID      `json:"user_id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Data    map[string]any `json:"data,omitempty"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type CreateAccessRequest struct {
	Resource string `json:"resource"`
	Reason   string `json:"reason"`
}

type ResolveAccessRequest struct {
	Status    string `json:"status"`
	AdminNote string `json:"admin_note,omitempty"`
}
