package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	"github.com/pixrworth/platform/internal/appraisal/domain"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	obsmetrics "github.com/pixrworth/platform/internal/observability/metrics"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
	usagedomain "github.com/pixrworth/platform/internal/usage/domain"
)

type ServiceParam struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Provider domain.Provider
	Ledger   usagedomain.Ledger
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg      config.AppraisalConfig
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	provider domain.Provider
	ledger   usagedomain.Ledger
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		cfg:      p.Config.Appraisal,
		log:      p.Log,
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		provider: p.Provider,
		ledger:   p.Ledger,
		metrics:  p.Metrics,
	}
}

// FetchValuation serves from the cache window when possible. Cache hits
// bypass the quota gate entirely; only a fresh provider call consumes
// the property against the plan, and a blocked quota aborts before any
// provider traffic.
func (s *Service) FetchValuation(ctx context.Context, user *accountdomain.User, property *propertydomain.Property) (*domain.PropertyWorth, bool, error) {
	threshold := s.clock.Now().Add(-s.cfg.CacheTTL)

	cached, err := s.repo.FindLatestWithin(ctx, property.ID, threshold)
	if err != nil {
		return nil, false, fmt.Errorf("lookup cached valuation: %w", err)
	}
	if cached != nil {
		s.recordFetch(ctx, true)
		return cached, true, nil
	}

	if err := s.ledger.EnsureUsage(ctx, user, property.ID, usagedomain.ActionAppraisal); err != nil {
		return nil, false, err
	}

	valuation, err := s.provider.FetchValue(ctx, property)
	if err != nil {
		return nil, false, fmt.Errorf("fetch valuation from %s: %w", s.provider.Name(), err)
	}

	worth, err := s.persist(ctx, property.ID, valuation)
	if err != nil {
		return nil, false, err
	}

	s.log.Info("property valuation fetched",
		zap.Int64("property_id", int64(property.ID)),
		zap.String("provider", valuation.Provider),
		zap.Float64("value", valuation.Value))
	s.recordFetch(ctx, false)
	return worth, false, nil
}

func (s *Service) History(ctx context.Context, propertyID snowflake.ID, limit int) ([]*domain.PropertyWorth, error) {
	return s.repo.History(ctx, propertyID, limit)
}

func (s *Service) persist(ctx context.Context, propertyID snowflake.ID, v *domain.Valuation) (*domain.PropertyWorth, error) {
	comparables, err := json.Marshal(v.Comparables)
	if err != nil {
		return nil, fmt.Errorf("encode comparables: %w", err)
	}
	trend, err := json.Marshal(v.Trend)
	if err != nil {
		return nil, fmt.Errorf("encode trend: %w", err)
	}

	worth := &domain.PropertyWorth{
		ID:          s.genID.Generate(),
		PropertyID:  propertyID,
		Value:       v.Value,
		ValueLow:    v.ValueLow,
		ValueHigh:   v.ValueHigh,
		Confidence:  v.Confidence,
		Comparables: datatypes.JSON(comparables),
		Trend:       datatypes.JSON(trend),
		Provider:    v.Provider,
		FetchedAt:   v.FetchedAt,
	}
	if err := s.repo.Save(ctx, worth); err != nil {
		return nil, fmt.Errorf("persist valuation: %w", err)
	}
	return worth, nil
}

func (s *Service) recordFetch(ctx context.Context, cached bool) {
	if s.metrics != nil {
		s.metrics.RecordAppraisalFetch(ctx, s.provider.Name(), cached)
	}
}
