package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixrworth/platform/internal/account/domain"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByAPIKey(ctx context.Context, key string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("api_key = ?", key).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) LockForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.User, error) {
	stmt := tx.WithContext(ctx)
	// SQLite serializes writers on the connection itself and rejects
	// the locking clause.
	if !strings.EqualFold(tx.Dialector.Name(), "sqlite") {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var user domain.User
	if err := stmt.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
