package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("account: user not found")

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByAPIKey(ctx context.Context, key string) (*User, error)

	// LockForUpdate reads the user row inside tx holding an exclusive
	// row lock until the transaction ends. It is the serialization
	// point for all quota decisions about that user.
	LockForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*User, error)
}
