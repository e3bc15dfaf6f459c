// Package domain defines valuation records and the provider port.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
)

// Comparable is a nearby recent sale supporting the estimate.
type Comparable struct {
	Address       string  `json:"address"`
	SalePrice     float64 `json:"sale_price"`
	DistanceMiles float64 `json:"distance_miles"`
}

// TrendPoint is one sample of the recent value trajectory.
type TrendPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Valuation is the normalized payload a provider returns before it is
// persisted.
type Valuation struct {
	Value       float64      `json:"value"`
	ValueLow    float64      `json:"value_low"`
	ValueHigh   float64      `json:"value_high"`
	Confidence  float64      `json:"confidence"`
	Comparables []Comparable `json:"comparables"`
	Trend       []TrendPoint `json:"trend"`
	Provider    string       `json:"provider"`
	FetchedAt   time.Time    `json:"fetched_at"`
}

// PropertyWorth is a persisted valuation snapshot. Rows are append
// only; the newest one within the cache window answers repeat requests
// without another provider call.
type PropertyWorth struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	PropertyID  snowflake.ID   `gorm:"not null;index:ix_worth_property_fetched,priority:1" json:"property_id"`
	Value       float64        `gorm:"not null" json:"value"`
	ValueLow    float64        `json:"value_low"`
	ValueHigh   float64        `json:"value_high"`
	Confidence  float64        `json:"confidence"`
	Comparables datatypes.JSON `json:"comparables"`
	Trend       datatypes.JSON `json:"trend"`
	Provider    string         `gorm:"size:32;not null" json:"provider"`
	FetchedAt   time.Time      `gorm:"not null;index:ix_worth_property_fetched,priority:2" json:"fetched_at"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PropertyWorth) TableName() string { return "property_worths" }

// Provider fetches a valuation from an external source.
type Provider interface {
	Name() string
	FetchValue(ctx context.Context, property *propertydomain.Property) (*Valuation, error)
}

type Repository interface {
	Save(ctx context.Context, worth *PropertyWorth) error
	// FindLatestWithin returns the newest valuation fetched at or after
	// threshold, or nil when none qualifies.
	FindLatestWithin(ctx context.Context, propertyID snowflake.ID, threshold time.Time) (*PropertyWorth, error)
	History(ctx context.Context, propertyID snowflake.ID, limit int) ([]*PropertyWorth, error)
}

// Service answers valuation requests, consuming quota only when a
// fresh provider call is needed.
type Service interface {
	// FetchValuation returns the current worth of the property. The
	// bool reports whether the answer came from the cache window.
	FetchValuation(ctx context.Context, user *accountdomain.User, property *propertydomain.Property) (*PropertyWorth, bool, error)
	History(ctx context.Context, propertyID snowflake.ID, limit int) ([]*PropertyWorth, error)
}
