package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID              string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Email           string     `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	Password        *string    `gorm:"column:password" json:"-"`
	FirstName       string     `gorm:"column:first_name;type:varchar(100)" json:"first_name"`
	LastName        string     `gorm:"column:last_name;type:varchar(100)" json:"last_name"`
	FullName        string     `gorm:"column:full_name;type:varchar(200)" json:"full_name"`
	Phone           string     `gorm:"column:phone;type:varchar(20)" json:"phone,omitempty"`
	AvatarURL       string     `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	Role            string     `gorm:"column:role;type:varchar(20);default:CONSUMER;not null" json:"role"`
	IsActive        bool       `gorm:"column:is_active;default:false;not null" json:"is_active"`
	IsVerified      bool       `gorm:"column:is_verified;default:false;not null" json:"is_verified"`
	IsDeleted       bool       `gorm:"column:is_deleted;default:false;not null" json:"-"`
	EmailVerifiedAt *time.Time `gorm:"column:email_verified_at" json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	OTPCode         *string    `gorm:"column:otp_code;type:varchar(6)" json:"-"`
	OTPExpireAt     *time.Time `gorm:"column:otp_expire_at" json:"-"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasPassword is false for accounts created through OAuth only.
func (u *User) HasPassword() bool {
	return u.Password != nil && *u.Password != ""
}

// OTPMatches reports whether code equals the stored OTP and the OTP has not
// reached its expiry at now.
func (u *User) OTPMatches(code string, now time.Time) bool {
	if u.OTPCode == nil || u.OTPExpireAt == nil || code == "" {
		return false
	}
	return *u.OTPCode == code && now.Before(*u.OTPExpireAt)
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.FirstName != "" || u.LastName != "" {
		return joinName(u.FirstName, u.LastName)
	}
	return u.Email
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

func FullName(first, last string) string {
	return joinName(first, last)
}
