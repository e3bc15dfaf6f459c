package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/pixrworth/platform/internal/glowup/domain"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) Find(ctx context.Context, id snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *repository) Update(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *repository) ListByProperty(ctx context.Context, propertyID snowflake.ID) ([]*domain.Job, error) {
	var jobs []*domain.Job
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("id DESC").
		Find(&jobs).Error
	return jobs, err
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	var jobs []*domain.Job
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
