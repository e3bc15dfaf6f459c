package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/pixrworth/platform/internal/property/domain"
	"github.com/pixrworth/platform/pkg/db/pagination"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, property *domain.Property) error {
	if property.Slug == "" {
		property.Slug = slug.Make(fmt.Sprintf("%s %s", property.Title, property.City))
	}
	if property.Status == "" {
		property.Status = domain.StatusActive
	}
	return r.db.WithContext(ctx).Create(property).Error
}

func (r *repository) FindOwned(ctx context.Context, userID, id snowflake.ID) (*domain.Property, error) {
	var property domain.Property
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&property).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPropertyNotFound
		}
		return nil, err
	}
	return &property, nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*domain.Property, *pagination.PageInfo, error) {
	limit := p.PageSize
	if limit <= 0 {
		limit = 10
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
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

	var properties []*domain.Property
	if err := query.Find(&properties).Error; err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(properties, limit, func(pr *domain.Property) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: pr.ID.String()})
		return token
	})
	if len(properties) > limit {
		properties = properties[:limit]
	}
	return properties, pageInfo, nil
}

func (r *repository) AddPhoto(ctx context.Context, photo *domain.Photo) error {
	return r.db.WithContext(ctx).Create(photo).Error
}

func (r *repository) Photos(ctx context.Context, propertyID snowflake.ID) ([]*domain.Photo, error) {
	var photos []*domain.Photo
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("id ASC").
		Find(&photos).Error
	return photos, err
}

func (r *repository) FindPhoto(ctx context.Context, propertyID, photoID snowflake.ID) (*domain.Photo, error) {
	var photo domain.Photo
	err := r.db.WithContext(ctx).
		Where("id = ? AND property_id = ?", photoID, propertyID).
		First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPhotoNotFound
		}
		return nil, err
	}
	return &photo, nil
}
