package auth

import (
	"time"

	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	"github.com/google/uuid"
)

// LoginRequest captures the admin credentials sent to the login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangeCredentialsRequest updates the caller's username and/or password.
// The current password is always required.
type ChangeCredentialsRequest struct {
	CurrentPassword string  `json:"current_password" validate:"required"`
	NewUsername     *string `json:"new_username,omitempty" validate:"omitempty,min=3,max=64"`
	NewPassword     *string `json:"new_password,omitempty" validate:"omitempty,min=8,max=256"`
}

type AdminDTO struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Admin        *AdminDTO `json:"admin,omitempty"`
}

func FromModel(admin *models.Admin) *AdminDTO {
	if admin == nil {
		return nil
	}
	return &AdminDTO{ID: admin.ID, Username: admin.Username, LastLoginAt: admin.LastLoginAt}
}
