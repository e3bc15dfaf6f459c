// Package period computes monthly accounting windows. Boundaries are
// taken in the configured business timezone so the window flips at
// local midnight, then normalized to UTC for storage and comparison.
package period

import (
	"time"

	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/usage/domain"
)

const keyLayout = "2006-01"

type Calculator struct {
	clock clock.Clock
	loc   *time.Location
}

func NewCalculator(clk clock.Clock, loc *time.Location) *Calculator {
	return &Calculator{clock: clk, loc: loc}
}

// Current returns the window containing now.
func (c *Calculator) Current() domain.Period {
	return c.At(c.clock.Now())
}

// At returns the window containing t. Key is the local year-month, so
// two instants in the same local month always share a period even when
// their UTC dates differ.
func (c *Calculator) At(t time.Time) domain.Period {
	local := t.In(c.loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.loc)
	next := start.AddDate(0, 1, 0)

	return domain.Period{
		Key:      start.Format(keyLayout),
		StartsAt: start.UTC(),
		EndsAt:   next.Add(-time.Second).UTC(),
		ResetsAt: next.UTC(),
	}
}
