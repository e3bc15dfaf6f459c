// Package domain contains the account model and its persistence port.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is an authenticated account. Plan holds the raw tier string as
// stored at signup or checkout; it is normalized by the plan resolver,
// never trusted directly. UsageCount and UsageResetAt form the
// denormalized fast counter owned by the usage ledger.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"not null;uniqueIndex" json:"email"`
	DisplayName  string       `gorm:"type:text" json:"display_name"`
	Plan         string       `gorm:"size:32;not null;default:professional" json:"plan"`
	APIKey       string       `gorm:"size:64;uniqueIndex" json:"-"`
	UsageCount   int          `gorm:"not null;default:0" json:"usage_count"`
	UsageResetAt *time.Time   `json:"usage_reset_at"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }
