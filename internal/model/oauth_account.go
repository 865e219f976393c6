package model

import (
	"time"

	"gorm.io/datatypes"
)

type OAuthAccount struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UserID              string         `gorm:"column:user_id;type:varchar(36);not null;index:idx_oauth_user_provider,priority:1" json:"user_id"`
	Provider            string         `gorm:"column:provider;type:varchar(20);not null;uniqueIndex:idx_oauth_provider_subject,priority:1;index:idx_oauth_user_provider,priority:2" json:"provider"`
	ProviderUserID      string         `gorm:"column:provider_user_id;not null;uniqueIndex:idx_oauth_provider_subject,priority:2" json:"provider_user_id"`
	ProviderEmail       string         `gorm:"column:provider_email" json:"provider_email,omitempty"`
	AccessToken         string         `gorm:"column:access_token" json:"-"`
	RefreshToken        string         `gorm:"column:refresh_token" json:"-"`
	TokenType           string         `gorm:"column:token_type;type:varchar(20)" json:"-"`
	ExpiresAt           *time.Time     `gorm:"column:expires_at" json:"-"`
	Scope               string         `gorm:"column:scope" json:"scope,omitempty"`
	ProviderProfileData datatypes.JSON `gorm:"column:provider_profile_data" json:"-"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (OAuthAccount) TableName() string {
	return "oauth_accounts"
}
