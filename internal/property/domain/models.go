// Package domain holds the property catalog model. A property is the
// unit of quota consumption, so everything metered hangs off these rows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

type Property struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID   `gorm:"not null;index" json:"user_id"`
	Title      string         `gorm:"not null" json:"title"`
	Slug       string         `gorm:"size:160;not null;index" json:"slug"`
	Status     Status         `gorm:"size:24;not null;default:active" json:"status"`
	Address    string         `gorm:"not null" json:"address"`
	City       string         `json:"city"`
	State      string         `json:"state"`
	PostalCode string         `json:"postal_code"`
	Country    string         `gorm:"size:2" json:"country"`
	Lat        *float64       `json:"lat"`
	Lng        *float64       `json:"lng"`
	PlaceID    string         `json:"place_id"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Property) TableName() string { return "properties" }

// Photo is an original listing photo uploaded by the owner. Glow-up
// jobs read these as their before image.
type Photo struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	PropertyID   snowflake.ID `gorm:"not null;index" json:"property_id"`
	Path         string       `gorm:"not null" json:"path"`
	OriginalName string       `json:"original_name"`
	Size         int64        `json:"size"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Photo) TableName() string { return "property_photos" }
