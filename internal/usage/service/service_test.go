package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	accountrepo "github.com/pixrworth/platform/internal/account/repository"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/plan"
	"github.com/pixrworth/platform/internal/usage/domain"
	"github.com/pixrworth/platform/internal/usage/period"
	pkgdb "github.com/pixrworth/platform/pkg/db"
	"github.com/pixrworth/platform/pkg/db/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&accountdomain.User{}, &domain.LedgerEntry{}))
	return gdb
}

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	clk    *clock.FakeClock
	ledger domain.Ledger
}

func newFixture(t *testing.T, catalog config.PlanCatalog) *fixture {
	t.Helper()

	gdb := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))
	resolver := plan.NewResolver(config.NewStaticPlanCatalogHolder(catalog), zap.NewNop())

	return &fixture{
		db:   gdb,
		node: node,
		clk:  clk,
		ledger: NewService(ServiceParam{
			DB:       gdb,
			Log:      zap.NewNop(),
			GenID:    node,
			Clock:    clk,
			Accounts: accountrepo.New(gdb),
			Plans:    resolver,
			Periods:  period.NewCalculator(clk, time.UTC),
		}),
	}
}

func catalogWithLimit(limit int) config.PlanCatalog {
	catalog := config.DefaultPlanCatalog()
	catalog.Tiers["starter"] = config.PlanTier{Label: "Starter", Limit: &limit}
	catalog.Tiers["internal"] = config.PlanTier{Label: "Internal", Limit: nil}
	return catalog
}

func (f *fixture) createUser(t *testing.T, tier string) *accountdomain.User {
	t.Helper()

	user := &accountdomain.User{
		ID:    f.node.Generate(),
		Email: fmt.Sprintf("%d@example.test", f.node.Generate()),
		Plan:  tier,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) reload(t *testing.T, user *accountdomain.User) *accountdomain.User {
	t.Helper()

	var fresh accountdomain.User
	require.NoError(t, f.db.Where("id = ?", user.ID).First(&fresh).Error)
	return &fresh
}

func (f *fixture) entryCount(t *testing.T, user *accountdomain.User) int64 {
	t.Helper()

	var count int64
	require.NoError(t, f.db.Model(&domain.LedgerEntry{}).
		Where("scope_type = ? AND scope_id = ?", domain.ScopeUser, user.ID).
		Count(&count).Error)
	return count
}

func TestEnsureUsageCountsOncePerProperty(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	property := f.node.Generate()

	for i := 0; i < 4; i++ {
		require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal))
	}

	assert.EqualValues(t, 1, f.entryCount(t, user))
	assert.Equal(t, 1, f.reload(t, user).UsageCount)
}

func TestEnsureUsageDistinctPropertiesAccumulate(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")

	for i := 0; i < 3; i++ {
		require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal))
	}

	assert.EqualValues(t, 3, f.entryCount(t, user))
	assert.Equal(t, 3, f.reload(t, user).UsageCount)
}

func TestEnsureUsageRetryAtLimitSucceeds(t *testing.T) {
	f := newFixture(t, catalogWithLimit(1))
	user := f.createUser(t, "starter")
	property := f.node.Generate()

	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal))

	// The scope is now at its limit, but the property is already on the
	// ledger so a retry must not block.
	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal))

	assert.EqualValues(t, 1, f.entryCount(t, user))
	assert.Equal(t, 1, f.reload(t, user).UsageCount)
}

func TestEnsureUsageBlocksBeyondLimit(t *testing.T) {
	limit := 3
	f := newFixture(t, catalogWithLimit(limit))
	user := f.createUser(t, "starter")

	for i := 0; i < limit; i++ {
		require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal))
	}

	err := f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal)

	var quotaErr *domain.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "starter", quotaErr.Plan.Tier)
	assert.Equal(t, limit, quotaErr.Used)
	assert.Equal(t, 0, quotaErr.Remaining)
	assert.Equal(t, "2025-03", quotaErr.PeriodKey)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), quotaErr.ResetsAt)

	// A blocked attempt leaves no trace.
	assert.EqualValues(t, limit, f.entryCount(t, user))
	assert.Equal(t, limit, f.reload(t, user).UsageCount)
}

func TestEnsureUsageUnlimitedPlanNeverBlocks(t *testing.T) {
	f := newFixture(t, catalogWithLimit(1))
	user := f.createUser(t, "internal")

	for i := 0; i < 25; i++ {
		require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionGlowUp))
	}

	assert.EqualValues(t, 25, f.entryCount(t, user))
	assert.Equal(t, 25, f.reload(t, user).UsageCount)
}

func TestEnsureUsageWindowRollover(t *testing.T) {
	f := newFixture(t, catalogWithLimit(2))
	user := f.createUser(t, "starter")

	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal))
	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal))

	var quotaErr *domain.QuotaExceededError
	require.ErrorAs(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal), &quotaErr)

	// Next month: the stale counter must self-heal from the ledger and
	// the fresh window opens at zero.
	f.clk.Set(time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC))

	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal))

	fresh := f.reload(t, user)
	assert.Equal(t, 1, fresh.UsageCount)
	require.NotNil(t, fresh.UsageResetAt)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), fresh.UsageResetAt.UTC())
}

func TestEnsureUsageHealsCorruptCounter(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")

	// A counter inflated past the limit with no reset marker must not
	// block: the recount from the ledger is authoritative.
	require.NoError(t, f.db.Model(&accountdomain.User{}).
		Where("id = ?", user.ID).
		Update("usage_count", 99).Error)

	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionAppraisal))

	assert.Equal(t, 1, f.reload(t, user).UsageCount)
}

// Mirrors the canonical walkthrough: a five property plan across one
// billing month and into the next.
func TestEnsureUsageLimitFiveScenario(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	ctx := context.Background()

	properties := make([]snowflake.ID, 5)
	for i := range properties {
		properties[i] = f.node.Generate()
		require.NoError(t, f.ledger.EnsureUsage(ctx, user, properties[i], domain.ActionAppraisal))
	}

	// Sixth distinct property blocks.
	var quotaErr *domain.QuotaExceededError
	require.ErrorAs(t, f.ledger.EnsureUsage(ctx, user, f.node.Generate(), domain.ActionAppraisal), &quotaErr)

	// Re-running any feature against an already counted property is
	// free, even at the limit.
	require.NoError(t, f.ledger.EnsureUsage(ctx, user, properties[2], domain.ActionAppraisal))
	require.NoError(t, f.ledger.EnsureUsage(ctx, user, properties[2], domain.ActionGlowUp))
	require.NoError(t, f.ledger.EnsureUsage(ctx, user, properties[4], domain.ActionReport))

	assert.EqualValues(t, 5, f.entryCount(t, user))

	// The new month opens a fresh window.
	f.clk.Set(time.Date(2025, 4, 1, 0, 0, 1, 0, time.UTC))
	require.NoError(t, f.ledger.EnsureUsage(ctx, user, f.node.Generate(), domain.ActionAppraisal))
	assert.Equal(t, 1, f.reload(t, user).UsageCount)
}

func TestEnsureUsageRecordsFirstAction(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	property := f.node.Generate()

	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionGlowUp))
	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal))

	var entry domain.LedgerEntry
	require.NoError(t, f.db.Where("property_id = ?", property).First(&entry).Error)
	assert.Equal(t, domain.ActionGlowUp, entry.FirstAction)
	assert.Equal(t, "starter", entry.PlanTier)
	assert.Equal(t, "2025-03", entry.PeriodKey)
}

func TestEnsureUsageUnknownUser(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))

	ghost := &accountdomain.User{ID: f.node.Generate(), Plan: "starter"}
	err := f.ledger.EnsureUsage(context.Background(), ghost, f.node.Generate(), domain.ActionAppraisal)
	assert.ErrorIs(t, err, accountdomain.ErrUserNotFound)
}

func TestSummaryFor(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	ctx := context.Background()

	require.NoError(t, f.ledger.EnsureUsage(ctx, user, f.node.Generate(), domain.ActionAppraisal))
	require.NoError(t, f.ledger.EnsureUsage(ctx, user, f.node.Generate(), domain.ActionAppraisal))

	summary, err := f.ledger.SummaryFor(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, "starter", summary.Plan.Tier)
	assert.Equal(t, 2, summary.Used)
	require.NotNil(t, summary.Remaining)
	assert.Equal(t, 3, *summary.Remaining)
	assert.Equal(t, "2025-03", summary.PeriodKey)
	assert.Equal(t, "2025-04-01T00:00:00Z", summary.ResetsAt)
	assert.Equal(t, "2025-03-31T23:59:59Z", summary.EndsAt)
}

func TestSummaryForReadsLedgerNotCounter(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	ctx := context.Background()

	require.NoError(t, f.ledger.EnsureUsage(ctx, user, f.node.Generate(), domain.ActionAppraisal))

	// Corrupt the fast counter; the summary must not notice.
	require.NoError(t, f.db.Model(&accountdomain.User{}).
		Where("id = ?", user.ID).
		Update("usage_count", 42).Error)

	summary, err := f.ledger.SummaryFor(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Used)
}

func TestSummaryForUnlimited(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "internal")

	summary, err := f.ledger.SummaryFor(context.Background(), user)
	require.NoError(t, err)
	assert.Nil(t, summary.Remaining)
	assert.Nil(t, summary.Plan.Limit)
}

func TestEntriesPagination(t *testing.T) {
	f := newFixture(t, catalogWithLimit(20))
	user := f.createUser(t, "starter")
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, f.ledger.EnsureUsage(ctx, user, f.node.Generate(), domain.ActionAppraisal))
	}

	first, pageInfo, err := f.ledger.Entries(ctx, user, pagination.Pagination{PageSize: 5})
	require.NoError(t, err)
	assert.Len(t, first, 5)
	require.True(t, pageInfo.HasMore)

	second, pageInfo, err := f.ledger.Entries(ctx, user, pagination.Pagination{PageSize: 5, PageToken: pageInfo.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.False(t, pageInfo.HasMore)

	// Newest first, no overlap between pages.
	seen := map[snowflake.ID]bool{}
	for _, e := range append(first, second...) {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}

func TestEnsureUsageConcurrentSamePropertyCountsOnce(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	property := f.node.Generate()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.entryCount(t, user))
	assert.Equal(t, 1, f.reload(t, user).UsageCount)
}

func TestEnsureUsageRecoversLostInsertRace(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	property := f.node.Generate()

	// Simulate a rival transaction winning the insert between the
	// idempotency read and the write: a conflicting row is slipped in
	// just ahead of the first ledger create, on the same connection.
	fired := false
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("rival_insert", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "usage_property_monthlies" {
			return
		}
		fired = true
		rival := domain.LedgerEntry{
			ID:           f.node.Generate(),
			ScopeType:    domain.ScopeUser,
			ScopeID:      user.ID,
			PropertyID:   property,
			PeriodKey:    "2025-03",
			UserID:       user.ID,
			PlanTier:     "starter",
			FirstAction:  domain.ActionAppraisal,
			CountedAt:    f.clk.Now().UTC(),
			PeriodEndsAt: time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC),
		}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(&rival).Error; err != nil {
			_ = tx.AddError(err)
		}
	}))

	// The duplicate-key violation is recovered as already counted, not
	// surfaced to the caller.
	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal))
	assert.True(t, fired)
	assert.EqualValues(t, 1, f.entryCount(t, user))

	// The losing transaction leaves the counter alone; the next refresh
	// recounts from the ledger.
	assert.Equal(t, 0, f.reload(t, user).UsageCount)
	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal))
	assert.EqualValues(t, 1, f.entryCount(t, user))
}

func TestLedgerUniqueIndexViolationIsTagged(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")
	property := f.node.Generate()

	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, property, domain.ActionAppraisal))

	var existing domain.LedgerEntry
	require.NoError(t, f.db.First(&existing).Error)

	dup := existing
	dup.ID = f.node.Generate()
	err := f.db.Create(&dup).Error
	require.Error(t, err)
	assert.True(t, pkgdb.IsDuplicateKeyErr(err))
}

func TestEnsureUsageStampsLedgerWithClock(t *testing.T) {
	f := newFixture(t, catalogWithLimit(5))
	user := f.createUser(t, "starter")

	require.NoError(t, f.ledger.EnsureUsage(context.Background(), user, f.node.Generate(), domain.ActionGlowUp))

	var entry domain.LedgerEntry
	require.NoError(t, f.db.First(&entry).Error)
	assert.True(t, entry.CountedAt.Equal(f.clk.Now().UTC()),
		"counted_at %s should match the clock %s", entry.CountedAt, f.clk.Now().UTC())
}
