package domain

import (
	"fmt"
	"time"

	"github.com/pixrworth/platform/internal/plan"
)

// QuotaExceededError is returned when counting a new property would
// push a scope past its plan limit. It carries everything the client
// needs to render an upgrade prompt; handlers map it to HTTP 429.
type QuotaExceededError struct {
	Plan      plan.Info
	Used      int
	Remaining int
	PeriodKey string
	ResetsAt  time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("usage: monthly property limit reached for plan %s (%d/%d, resets %s)",
		e.Plan.Tier, e.Used, derefLimit(e.Plan.Limit), e.ResetsAt.Format(time.RFC3339))
}

func derefLimit(limit *int) int {
	if limit == nil {
		return 0
	}
	return *limit
}
