package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pixrworth/platform/internal/appraisal/domain"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
)

// HouseCanary calls the hosted valuation API. Responses are normalized
// into the provider-neutral Valuation shape.
type HouseCanary struct {
	baseURL string
	apiKey  string
	client  *http.Client
	clock   clock.Clock
}

func NewHouseCanary(cfg config.AppraisalConfig, clk clock.Clock) *HouseCanary {
	return &HouseCanary{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		clock:   clk,
	}
}

func (h *HouseCanary) Name() string { return "housecanary" }

type houseCanaryResponse struct {
	Value struct {
		Mean       float64 `json:"mean"`
		Low        float64 `json:"low"`
		High       float64 `json:"high"`
		Confidence float64 `json:"fsd"`
	} `json:"value"`
	Comparables []struct {
		Address  string  `json:"address"`
		Price    float64 `json:"sale_price"`
		Distance float64 `json:"distance_miles"`
	} `json:"comparables"`
	Trend []struct {
		Month string  `json:"month"`
		Value float64 `json:"value"`
	} `json:"value_trend"`
}

func (h *HouseCanary) FetchValue(ctx context.Context, property *propertydomain.Property) (*domain.Valuation, error) {
	query := url.Values{}
	query.Set("address", property.Address)
	query.Set("zipcode", property.PostalCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/property/value?%s", h.baseURL, query.Encode()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", h.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("housecanary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("housecanary: unexpected status %d", resp.StatusCode)
	}

	var payload houseCanaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("housecanary: decode response: %w", err)
	}

	valuation := &domain.Valuation{
		Value:      payload.Value.Mean,
		ValueLow:   payload.Value.Low,
		ValueHigh:  payload.Value.High,
		Confidence: payload.Value.Confidence,
		Provider:   h.Name(),
		FetchedAt:  h.clock.Now().UTC(),
	}
	for _, c := range payload.Comparables {
		valuation.Comparables = append(valuation.Comparables, domain.Comparable{
			Address:       c.Address,
			SalePrice:     c.Price,
			DistanceMiles: c.Distance,
		})
	}
	for _, p := range payload.Trend {
		valuation.Trend = append(valuation.Trend, domain.TrendPoint{Label: p.Month, Value: p.Value})
	}
	return valuation, nil
}
