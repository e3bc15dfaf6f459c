// Package service implements the usage ledger: the single transaction
// that decides whether a property counts, blocks, or was already
// counted for the current period.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/observability/logger"
	obsmetrics "github.com/pixrworth/platform/internal/observability/metrics"
	"github.com/pixrworth/platform/internal/plan"
	"github.com/pixrworth/platform/internal/usage/domain"
	"github.com/pixrworth/platform/internal/usage/period"
	"github.com/pixrworth/platform/pkg/db"
	"github.com/pixrworth/platform/pkg/db/pagination"
)

const (
	outcomeCounted        = "counted"
	outcomeBlocked        = "blocked"
	outcomeAlreadyCounted = "already_counted"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Accounts accountdomain.Repository
	Plans    *plan.Resolver
	Periods  *period.Calculator
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	accounts accountdomain.Repository
	plans    *plan.Resolver
	periods  *period.Calculator
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) domain.Ledger {
	return &Service{
		db:       p.DB,
		log:      p.Log,
		genID:    p.GenID,
		clock:    p.Clock,
		accounts: p.Accounts,
		plans:    p.Plans,
		periods:  p.Periods,
		metrics:  p.Metrics,
	}
}

// EnsureUsage runs the whole quota decision in one transaction. The
// locked user row serializes concurrent checks for the scope; the
// unique ledger index catches anything that slips past the lock.
func (s *Service) EnsureUsage(ctx context.Context, user *accountdomain.User, propertyID snowflake.ID, action domain.Action) error {
	p := s.periods.Current()
	scope := domain.ResolveScope(user)
	planInfo := s.plans.Resolve(user.Plan)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.accounts.LockForUpdate(ctx, tx, user.ID)
		if err != nil {
			return fmt.Errorf("lock account %d: %w", user.ID, err)
		}

		s.refreshWindow(ctx, tx, locked, scope, p)

		counted, err := s.alreadyCounted(ctx, tx, scope, propertyID, p)
		if err != nil {
			return err
		}
		if counted {
			s.logOutcome(ctx, outcomeAlreadyCounted, scope, propertyID, action, planInfo, locked.UsageCount, p)
			return nil
		}

		if !planInfo.Unlimited() && locked.UsageCount >= *planInfo.Limit {
			s.logOutcome(ctx, outcomeBlocked, scope, propertyID, action, planInfo, locked.UsageCount, p)
			return &domain.QuotaExceededError{
				Plan:      planInfo,
				Used:      locked.UsageCount,
				Remaining: remaining(planInfo.Limit, locked.UsageCount),
				PeriodKey: p.Key,
				ResetsAt:  p.ResetsAt,
			}
		}

		entry := domain.LedgerEntry{
			ID:           s.genID.Generate(),
			ScopeType:    scope.Type,
			ScopeID:      scope.ID,
			PropertyID:   propertyID,
			PeriodKey:    p.Key,
			UserID:       user.ID,
			PlanTier:     planInfo.Tier,
			FirstAction:  action,
			CountedAt:    s.clock.Now().UTC(),
			PeriodEndsAt: p.EndsAt,
		}
		if err := tx.Create(&entry).Error; err != nil {
			// A concurrent transaction won the insert race between our
			// lock acquisition and theirs. The property is counted, so
			// the caller proceeds.
			if db.IsDuplicateKeyErr(err) {
				s.logOutcome(ctx, outcomeAlreadyCounted, scope, propertyID, action, planInfo, locked.UsageCount, p)
				return nil
			}
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		locked.UsageCount++
		updates := map[string]any{
			"usage_count":    locked.UsageCount,
			"usage_reset_at": p.ResetsAt,
		}
		if err := tx.Model(&accountdomain.User{}).Where("id = ?", locked.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("advance usage counter: %w", err)
		}

		s.logOutcome(ctx, outcomeCounted, scope, propertyID, action, planInfo, locked.UsageCount, p)
		return nil
	})

	return err
}

// refreshWindow reconciles the denormalized counter with the ledger
// whenever the stored reset marker does not match the current window.
// The recount only mutates the in-memory row; it is persisted together
// with the increment when this request ends up counting.
func (s *Service) refreshWindow(ctx context.Context, tx *gorm.DB, user *accountdomain.User, scope domain.Scope, p domain.Period) {
	if user.UsageResetAt != nil && user.UsageResetAt.Equal(p.ResetsAt) {
		return
	}

	var count int64
	err := tx.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("scope_type = ? AND scope_id = ? AND period_key = ?", scope.Type, scope.ID, p.Key).
		Count(&count).Error
	if err != nil {
		// Keep serving with the stale counter; the ledger stays
		// authoritative and the next refresh retries.
		s.log.Warn("usage counter recount failed",
			zap.Error(err),
			zap.Int64("scope_id", int64(scope.ID)),
			zap.String("period_key", p.Key))
		return
	}

	user.UsageCount = int(count)
	resetsAt := p.ResetsAt
	user.UsageResetAt = &resetsAt
}

func (s *Service) alreadyCounted(ctx context.Context, tx *gorm.DB, scope domain.Scope, propertyID snowflake.ID, p domain.Period) (bool, error) {
	var entry domain.LedgerEntry
	err := tx.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ? AND property_id = ? AND period_key = ?",
			scope.Type, scope.ID, propertyID, p.Key).
		First(&entry).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("lookup ledger entry: %w", err)
}

// SummaryFor reads the scope's position straight from the ledger. The
// fast counter is never consulted here so the summary stays correct
// even when the cache is stale.
func (s *Service) SummaryFor(ctx context.Context, user *accountdomain.User) (domain.Summary, error) {
	p := s.periods.Current()
	scope := domain.ResolveScope(user)
	planInfo := s.plans.Resolve(user.Plan)

	var used int64
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("scope_type = ? AND scope_id = ? AND period_key = ?", scope.Type, scope.ID, p.Key).
		Count(&used).Error
	if err != nil {
		return domain.Summary{}, fmt.Errorf("count ledger entries: %w", err)
	}

	summary := domain.Summary{
		Plan:      planInfo,
		Used:      int(used),
		PeriodKey: p.Key,
		StartsAt:  p.StartsAt.Format(time.RFC3339),
		EndsAt:    p.EndsAt.Format(time.RFC3339),
		ResetsAt:  p.ResetsAt.Format(time.RFC3339),
	}
	if !planInfo.Unlimited() {
		left := remaining(planInfo.Limit, int(used))
		summary.Remaining = &left
	}
	return summary, nil
}

func (s *Service) Entries(ctx context.Context, user *accountdomain.User, p pagination.Pagination) ([]*domain.LedgerEntry, *pagination.PageInfo, error) {
	scope := domain.ResolveScope(user)

	limit := p.PageSize
	if limit <= 0 {
		limit = 10
	}

	query := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("scope_type = ? AND scope_id = ?", scope.Type, scope.ID).
		Order("id DESC").
		Limit(limit + 1)

	if p.PageToken != "" {
		cursor, err := pagination.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, nil, fmt.Errorf("decode page token: %w", err)
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("decode page token: %w", err)
		}
		query = query.Where("id < ?", cursorID)
	}

	var entries []*domain.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, nil, fmt.Errorf("list ledger entries: %w", err)
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, limit, func(e *domain.LedgerEntry) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		return token
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, pageInfo, nil
}

func (s *Service) logOutcome(ctx context.Context, outcome string, scope domain.Scope, propertyID snowflake.ID, action domain.Action, planInfo plan.Info, used int, p domain.Period) {
	logger.FromContext(ctx).Info("usage decision",
		zap.String("outcome", outcome),
		zap.String("scope_type", string(scope.Type)),
		zap.Int64("scope_id", int64(scope.ID)),
		zap.Int64("property_id", int64(propertyID)),
		zap.String("action", action.String()),
		zap.String("plan", planInfo.Tier),
		zap.Int("used", used),
		zap.String("period_key", p.Key),
		zap.Time("resets_at", p.ResetsAt))

	if s.metrics != nil {
		s.metrics.RecordUsageDecision(ctx, action.String(), outcome)
	}
}

func remaining(limit *int, used int) int {
	if limit == nil {
		return 0
	}
	if left := *limit - used; left > 0 {
		return left
	}
	return 0
}
