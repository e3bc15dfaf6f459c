package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/pixrworth/platform/pkg/db/pagination"
)

var (
	ErrPropertyNotFound = errors.New("property: not found")
	ErrPhotoNotFound    = errors.New("property: photo not found")
)

type Repository interface {
	Create(ctx context.Context, property *Property) error
	// FindOwned returns the property only when it belongs to userID.
	FindOwned(ctx context.Context, userID, id snowflake.ID) (*Property, error)
	ListByUser(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*Property, *pagination.PageInfo, error)
	AddPhoto(ctx context.Context, photo *Photo) error
	Photos(ctx context.Context, propertyID snowflake.ID) ([]*Photo, error)
	// FindPhoto returns the photo only when it belongs to propertyID.
	FindPhoto(ctx context.Context, propertyID, photoID snowflake.ID) (*Photo, error)
}
