// Package scheduler runs the periodic maintenance jobs: fast-counter
// resets at window rollover, ledger retention, and requeueing glow-up
// jobs a crashed worker left behind.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	"github.com/pixrworth/platform/internal/clock"
	glowupdomain "github.com/pixrworth/platform/internal/glowup/domain"
	usagedomain "github.com/pixrworth/platform/internal/usage/domain"
	"github.com/pixrworth/platform/internal/usage/period"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Periods   *period.Calculator
	GlowUpSvc glowupdomain.Service
	Config    Config `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	periods   *period.Calculator
	glowupSvc glowupdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Periods == nil || p.GlowUpSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		periods:   p.Periods,
		glowupSvc: p.GlowUpSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	log := s.log.With(
		zap.String("job", name),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)

	if err == nil {
		log.Debug("job finished")
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	log.Warn("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// leaderLockKey is the postgres advisory lock shared by every scheduler
// process. Stable across releases so rolling deploys contend correctly.
const leaderLockKey = 74200114

// RunOnce executes one pass of the enabled jobs. On postgres only one
// process at a time gets the pass; the advisory lock is held on a single
// pinned connection for the duration of the run.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if !strings.EqualFold(s.db.Dialector.Name(), "postgres") {
		return s.runJobs(parent)
	}

	return s.db.WithContext(parent).Connection(func(conn *gorm.DB) error {
		var acquired bool
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", leaderLockKey).Scan(&acquired).Error; err != nil {
			return fmt.Errorf("leader lock: %w", err)
		}
		if !acquired {
			s.log.Debug("another scheduler holds the leader lock, skipping run")
			return nil
		}
		defer func() {
			if err := conn.Exec("SELECT pg_advisory_unlock(?)", leaderLockKey).Error; err != nil {
				s.log.Warn("leader lock release failed", zap.Error(err))
			}
		}()

		return s.runJobs(parent)
	})
}

func (s *Scheduler) runJobs(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"reset_counters", func(ctx context.Context) error {
			return s.runJob(ctx, "reset_counters", 30*time.Second, s.ResetCountersJob)
		}},
		{"purge_ledger", func(ctx context.Context) error {
			return s.runJob(ctx, "purge_ledger", 2*time.Minute, s.PurgeLedgerJob)
		}},
		{"requeue_glowups", func(ctx context.Context) error {
			return s.runJob(ctx, "requeue_glowups", 2*time.Minute, s.RequeueGlowUpsJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ResetCountersJob zeroes fast counters whose window has passed and
// stamps them with the current reset marker. EnsureUsage self-heals
// lazily anyway; this keeps counters honest for accounts that go quiet
// across a rollover.
func (s *Scheduler) ResetCountersJob(ctx context.Context) error {
	p := s.periods.Current()

	res := s.db.WithContext(ctx).Model(&accountdomain.User{}).
		Where("usage_reset_at IS NOT NULL AND usage_reset_at <= ?", p.StartsAt).
		Updates(map[string]any{
			"usage_count":    0,
			"usage_reset_at": p.ResetsAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("usage counters reset",
			zap.Int64("accounts", res.RowsAffected),
			zap.String("period_key", p.Key))
	}
	return nil
}

// PurgeLedgerJob drops ledger rows past the retention horizon. Only
// closed periods are eligible; the current window is never touched.
func (s *Scheduler) PurgeLedgerJob(ctx context.Context) error {
	cutoff := s.clock.Now().UTC().AddDate(0, -s.cfg.RetentionMonths, 0)

	res := s.db.WithContext(ctx).
		Where("period_ends_at < ?", cutoff).
		Delete(&usagedomain.LedgerEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("ledger entries purged",
			zap.Int64("rows", res.RowsAffected),
			zap.Time("cutoff", cutoff))
	}
	return nil
}

// RequeueGlowUpsJob reprocesses jobs stranded in a non-terminal state,
// typically after a deploy killed the worker mid-run.
func (s *Scheduler) RequeueGlowUpsJob(ctx context.Context) error {
	stale := s.clock.Now().UTC().Add(-s.cfg.RecoveryThreshold)

	var stuck []*glowupdomain.Job
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]glowupdomain.Status{glowupdomain.StatusPending, glowupdomain.StatusProcessing}, stale).
		Order("id ASC").
		Limit(s.cfg.BatchSize).
		Find(&stuck).Error
	if err != nil {
		return err
	}

	var errs error
	for _, job := range stuck {
		s.log.Info("requeueing stuck glowup job",
			zap.Int64("job_id", int64(job.ID)),
			zap.String("status", string(job.Status)))
		// Reset to pending so Process picks it up regardless of how far
		// the dead worker got.
		if job.Status == glowupdomain.StatusProcessing {
			job.Status = glowupdomain.StatusPending
			if err := s.db.WithContext(ctx).Model(&glowupdomain.Job{}).
				Where("id = ?", job.ID).
				Update("status", glowupdomain.StatusPending).Error; err != nil {
				errs = errors.Join(errs, err)
				continue
			}
		}
		if err := s.glowupSvc.Process(ctx, job.ID); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
