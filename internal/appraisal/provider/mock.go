// Package provider contains the valuation provider adapters.
package provider

import (
	"context"
	"fmt"
	"hash/crc32"
	"math"
	"time"

	"github.com/pixrworth/platform/internal/appraisal/domain"
	"github.com/pixrworth/platform/internal/clock"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
)

// Mock produces deterministic valuations derived from the property
// itself, so development and tests get stable numbers without network
// access.
type Mock struct {
	clock clock.Clock
}

func NewMock(clk clock.Clock) *Mock {
	return &Mock{clock: clk}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) FetchValue(_ context.Context, property *propertydomain.Property) (*domain.Valuation, error) {
	now := m.clock.Now().UTC()

	seed := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%d%s", property.ID, property.Address)))
	base := float64(seed%250_000 + 350_000)

	return &domain.Valuation{
		Value:       round2(base),
		ValueLow:    round2(base * 0.97),
		ValueHigh:   round2(base * 1.03),
		Confidence:  0.87,
		Comparables: m.comparables(property, base),
		Trend:       m.trend(base, now),
		Provider:    m.Name(),
		FetchedAt:   now,
	}, nil
}

// trend walks six samples back in 15 day steps, ending at the current
// value.
func (m *Mock) trend(base float64, now time.Time) []domain.TrendPoint {
	points := make([]domain.TrendPoint, 0, 6)
	for i := 0; i < 6; i++ {
		offset := float64(i-5) * 15
		points = append(points, domain.TrendPoint{
			Label: now.AddDate(0, 0, -(5-i)*15).Format("Jan 02"),
			Value: round2(base * (1 + offset/1000)),
		})
	}
	return points
}

func (m *Mock) comparables(property *propertydomain.Property, base float64) []domain.Comparable {
	city := property.City
	if city == "" {
		city = "Austin"
	}
	state := property.State
	if state == "" {
		state = "TX"
	}

	streets := []string{"Willow", "Maple", "Cedar"}
	comps := make([]domain.Comparable, 0, 3)
	for i := 0; i < 3; i++ {
		adjusted := base * (1 + float64(i-1)*0.018)
		comps = append(comps, domain.Comparable{
			Address:       fmt.Sprintf("%d %s Ave, %s, %s", 101+int(base)%800+i, streets[i], city, state),
			SalePrice:     math.Round(adjusted),
			DistanceMiles: float64(i+1) * 0.35,
		})
	}
	return comps
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
