package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	"github.com/pixrworth/platform/internal/plan"
	"github.com/pixrworth/platform/pkg/db/pagination"
)

// Summary is the read-model of a scope's position in the current
// period, served on dashboards and echoed in quota error payloads.
type Summary struct {
	Plan      plan.Info `json:"plan"`
	Used      int       `json:"used"`
	Remaining *int      `json:"remaining"` // nil when the plan is unlimited
	PeriodKey string    `json:"period_key"`
	StartsAt  string    `json:"starts_at"`
	EndsAt    string    `json:"ends_at"`
	ResetsAt  string    `json:"resets_at"`
}

// Ledger is the quota enforcement service. EnsureUsage is the single
// gate every metered feature calls before doing paid work.
type Ledger interface {
	// EnsureUsage counts propertyID against the user's quota for the
	// current period, or confirms it was already counted. It returns
	// *QuotaExceededError when the property is new and the plan limit
	// is already spent.
	EnsureUsage(ctx context.Context, user *accountdomain.User, propertyID snowflake.ID, action Action) error

	// SummaryFor reports the user's position in the current period
	// from the ledger, never from the fast counter.
	SummaryFor(ctx context.Context, user *accountdomain.User) (Summary, error)

	// Entries pages through the user's ledger rows, newest first.
	Entries(ctx context.Context, user *accountdomain.User, p pagination.Pagination) ([]*LedgerEntry, *pagination.PageInfo, error)
}
