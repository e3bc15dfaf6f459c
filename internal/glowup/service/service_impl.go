// Package service runs the glow-up pipeline: quota gate at submission,
// then a small worker pool that moves jobs to a terminal state.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/glowup/domain"
	obsmetrics "github.com/pixrworth/platform/internal/observability/metrics"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
	usagedomain "github.com/pixrworth/platform/internal/usage/domain"
)

const queueDepth = 256

type ServiceParam struct {
	fx.In

	LC       fx.Lifecycle `optional:"true"`
	Config   config.Config
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Provider domain.ImageProvider
	Ledger   usagedomain.Ledger
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg      config.GlowUpConfig
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	provider domain.ImageProvider
	ledger   usagedomain.Ledger
	metrics  *obsmetrics.Metrics

	queue chan snowflake.ID
	wg    sync.WaitGroup
	stop  chan struct{}
}

func NewService(p ServiceParam) domain.Service {
	s := &Service{
		cfg:      p.Config.GlowUp,
		log:      p.Log,
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		provider: p.Provider,
		ledger:   p.Ledger,
		metrics:  p.Metrics,
		queue:    make(chan snowflake.ID, queueDepth),
		stop:     make(chan struct{}),
	}

	if p.LC != nil {
		p.LC.Append(fx.Hook{
			OnStart: func(context.Context) error {
				s.startWorkers()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.stopWorkers(ctx)
			},
		})
	}
	return s
}

func (s *Service) Create(ctx context.Context, user *accountdomain.User, property *propertydomain.Property, req domain.CreateJobRequest) (*domain.Job, error) {
	// Validate against the configured catalogs before touching quota so a
	// typo never consumes the property's monthly count.
	if !catalogAllows(s.cfg.RoomTypes, req.RoomType) || !catalogAllows(s.cfg.Styles, req.Style) {
		return nil, domain.ErrUnsupportedOption
	}

	if err := s.ledger.EnsureUsage(ctx, user, property.ID, usagedomain.ActionGlowUp); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	meta, _ := json.Marshal(map[string]string{
		"provider": s.provider.Name(),
		"prompt":   fmt.Sprintf(s.cfg.PromptTemplate, req.RoomType, req.Style),
	})

	job := &domain.Job{
		ID:              s.genID.Generate(),
		PropertyID:      property.ID,
		UserID:          user.ID,
		RoomType:        req.RoomType,
		Style:           req.Style,
		BeforeURL:       req.BeforeURL,
		Status:          domain.StatusPending,
		Meta:            datatypes.JSON(meta),
		UsageRecordedAt: &now,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persist glowup job: %w", err)
	}

	s.log.Info("glowup job created",
		zap.Int64("job_id", int64(job.ID)),
		zap.Int64("property_id", int64(property.ID)),
		zap.String("room_type", job.RoomType),
		zap.String("style", job.Style))
	s.recordJob(ctx, string(domain.StatusPending))

	s.enqueue(job.ID)
	return job, nil
}

func catalogAllows(catalog []string, value string) bool {
	if len(catalog) == 0 {
		return true
	}
	for _, v := range catalog {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func (s *Service) Find(ctx context.Context, userID, jobID snowflake.ID) (*domain.Job, error) {
	job, err := s.repo.Find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *Service) ListByProperty(ctx context.Context, userID, propertyID snowflake.ID) ([]*domain.Job, error) {
	jobs, err := s.repo.ListByProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	owned := jobs[:0]
	for _, job := range jobs {
		if job.UserID == userID {
			owned = append(owned, job)
		}
	}
	return owned, nil
}

func (s *Service) History(ctx context.Context, userID snowflake.ID, limit int) ([]*domain.Job, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// Process moves one job to a terminal state. Terminal jobs are left
// untouched so requeueing a finished ID is harmless.
func (s *Service) Process(ctx context.Context, jobID snowflake.ID) error {
	job, err := s.repo.Find(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}

	job.Status = domain.StatusProcessing
	job.ErrorMessage = ""
	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	afterURL, err := s.generate(ctx, job)
	if err != nil {
		job.Status = domain.StatusError
		job.ErrorMessage = err.Error()
		if uerr := s.repo.Update(ctx, job); uerr != nil {
			return fmt.Errorf("mark failed: %w", uerr)
		}
		s.log.Warn("glowup job failed",
			zap.Int64("job_id", int64(job.ID)),
			zap.Error(err))
		s.recordJob(ctx, string(domain.StatusError))
		return err
	}

	job.AfterURL = afterURL
	job.Status = domain.StatusDone
	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}

	s.log.Info("glowup job done",
		zap.Int64("job_id", int64(job.ID)),
		zap.String("after_url", afterURL))
	s.recordJob(ctx, string(domain.StatusDone))
	return nil
}

// generate shields the worker from provider panics; a panicking model
// adapter fails the one job, not the pool.
func (s *Service) generate(ctx context.Context, job *domain.Job) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("glowup provider panic: %v", r)
		}
	}()
	return s.provider.Generate(ctx, job)
}

func (s *Service) enqueue(id snowflake.ID) {
	select {
	case s.queue <- id:
	default:
		s.log.Warn("glowup queue full, job left pending", zap.Int64("job_id", int64(id)))
	}
}

func (s *Service) startWorkers() {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.stop:
					return
				case id := <-s.queue:
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
					if err := s.Process(ctx, id); err != nil {
						s.log.Warn("glowup worker error", zap.Int64("job_id", int64(id)), zap.Error(err))
					}
					cancel()
				}
			}
		}()
	}
	s.log.Info("glowup workers started", zap.Int("workers", workers))
}

func (s *Service) stopWorkers(ctx context.Context) error {
	close(s.stop)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) recordJob(ctx context.Context, status string) {
	if s.metrics != nil {
		s.metrics.RecordGlowUpJob(ctx, status)
	}
}
