package dto

import (
	"time"

	"github.com/Payphone-Digital/auth-service/internal/model"
)

type UserResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	FullName        string     `json:"full_name"`
	Phone           string     `json:"phone,omitempty"`
	AvatarURL       string     `json:"avatar_url,omitempty"`
	Role            string     `json:"role"`
	IsActive        bool       `json:"is_active"`
	IsVerified      bool       `json:"is_verified"`
	HasPassword     bool       `json:"has_password"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewUserResponse copies the public fields of u. Password and OTP never
// leave the service.
func NewUserResponse(u *model.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		FullName:        u.FullName,
		Phone:           u.Phone,
		AvatarURL:       u.AvatarURL,
		Role:            u.Role,
		IsActive:        u.IsActive,
		IsVerified:      u.IsVerified,
		HasPassword:     u.HasPassword(),
		EmailVerifiedAt: u.EmailVerifiedAt,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
