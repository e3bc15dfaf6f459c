package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/pixrworth/platform/internal/appraisal/domain"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Save(ctx context.Context, worth *domain.PropertyWorth) error {
	return r.db.WithContext(ctx).Create(worth).Error
}

func (r *repository) FindLatestWithin(ctx context.Context, propertyID snowflake.ID, threshold time.Time) (*domain.PropertyWorth, error) {
	var worth domain.PropertyWorth
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND fetched_at >= ?", propertyID, threshold).
		Order("fetched_at DESC").
		First(&worth).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &worth, nil
}

func (r *repository) History(ctx context.Context, propertyID snowflake.ID, limit int) ([]*domain.PropertyWorth, error) {
	if limit <= 0 {
		limit = 12
	}

	var worths []*domain.PropertyWorth
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("fetched_at DESC").
		Limit(limit).
		Find(&worths).Error
	return worths, err
}
