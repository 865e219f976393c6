package model

import "time"

// RevokedToken marks a token as unusable until ExpireAt, after which the
// token is dead anyway and the row may be purged.
type RevokedToken struct {
	TokenHash string    `gorm:"column:token_hash;type:char(64);primaryKey"`
	ExpireAt  time.Time `gorm:"column:expire_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}
