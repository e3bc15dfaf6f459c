// Package domain defines the usage ledger types. A ledger entry records
// that a property consumed quota for a scope in a monthly period; the
// unique (scope_type, scope_id, property_id, period_key) tuple is what
// makes counting exactly-once.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
)

// Action names the product feature that triggered a quota check. The
// first action against a property in a period is recorded on the ledger
// entry; later actions against the same property are free.
type Action string

const (
	ActionAppraisal Action = "appraisal"
	ActionGlowUp    Action = "glowup"
	ActionSpyHunt   Action = "spyhunt"
	ActionReport    Action = "report"
)

func (a Action) String() string { return string(a) }

// ScopeType identifies the kind of quota owner. Only individual users
// exist today; team and organization scopes reuse the same ledger shape
// when they land.
type ScopeType string

const ScopeUser ScopeType = "user"

// Scope is the normalized quota owner a ledger entry belongs to.
type Scope struct {
	Type ScopeType
	ID   snowflake.ID
	Name string
}

// ResolveScope maps an account onto its quota scope. Pure, never fails;
// the display name falls back so log lines stay readable.
func ResolveScope(user *accountdomain.User) Scope {
	name := user.DisplayName
	if name == "" {
		name = "Account"
	}
	return Scope{Type: ScopeUser, ID: user.ID, Name: name}
}

// Period is one monthly accounting window, computed in the configured
// business timezone and normalized to UTC. EndsAt is the last counted
// second; ResetsAt is the first instant of the next window.
type Period struct {
	Key      string
	StartsAt time.Time
	EndsAt   time.Time
	ResetsAt time.Time
}

// Contains reports whether t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.StartsAt) && t.Before(p.ResetsAt)
}

// LedgerEntry is the persistent record that a property was counted for
// a scope in a period. One row per (scope, property, period); the
// unique index is the second line of defense behind the row lock.
type LedgerEntry struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ScopeType    ScopeType    `gorm:"size:32;not null;uniqueIndex:ux_usage_scope_property_period,priority:1;index:ix_usage_scope_period,priority:1" json:"scope_type"`
	ScopeID      snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_scope_property_period,priority:2;index:ix_usage_scope_period,priority:2" json:"scope_id"`
	PropertyID   snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_scope_property_period,priority:3;index:ix_usage_property" json:"property_id"`
	PeriodKey    string       `gorm:"size:7;not null;uniqueIndex:ux_usage_scope_property_period,priority:4;index:ix_usage_scope_period,priority:3" json:"period_key"`
	UserID       snowflake.ID `gorm:"not null;index:ix_usage_user_period,priority:1" json:"user_id"`
	PlanTier     string       `gorm:"size:32;not null" json:"plan_tier"`
	FirstAction  Action       `gorm:"size:24;not null" json:"first_action"`
	CountedAt    time.Time    `gorm:"not null" json:"counted_at"`
	PeriodEndsAt time.Time    `gorm:"not null;index:ix_usage_user_period,priority:2" json:"period_ends_at"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (LedgerEntry) TableName() string { return "usage_property_monthlies" }
