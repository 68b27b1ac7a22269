package user

import (
	"time"

	"github.com/google/uuid"
)

// LocalUser is the durable local identity an authenticated subject maps to.
// ExternalID stays nil until the account is linked to a provider subject.
type LocalUser struct {
	ID          uuid.UUID
	ExternalID  *string
	Username    string
	Email       string
	DisplayName string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToResponse converts a LocalUser to a Response DTO. Subject and roles come
// from the verified token, not the stored row.
func (u *LocalUser) ToResponse(subject string, roles []string) Response {
	if roles == nil {
		roles = []string{}
	}
	return Response{
		ID:          u.ID,
		Subject:     subject,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Roles:       roles,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// Response is the JSON response for GET /api/v1/users/me.
type Response struct {
	ID          uuid.UUID `json:"id"`
	Subject     string    `json:"sub"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Roles       []string  `json:"roles"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
