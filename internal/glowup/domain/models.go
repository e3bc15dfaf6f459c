// Package domain defines glow-up jobs: AI restyling of a listing photo
// that runs asynchronously after the quota gate admits it.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Job is one restyle request. Quota is consumed at submission, so
// UsageRecordedAt is set before the first worker touches the row.
type Job struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	PropertyID      snowflake.ID   `gorm:"not null;index" json:"property_id"`
	UserID          snowflake.ID   `gorm:"not null;index" json:"user_id"`
	RoomType        string         `gorm:"size:48;not null" json:"room_type"`
	Style           string         `gorm:"size:48;not null" json:"style"`
	BeforeURL       string         `gorm:"not null" json:"before_url"`
	AfterURL        string         `json:"after_url"`
	Status          Status         `gorm:"size:16;not null;default:pending;index" json:"status"`
	ErrorMessage    string         `json:"error_message"`
	Meta            datatypes.JSON `json:"meta"`
	UsageRecordedAt *time.Time     `json:"usage_recorded_at"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Job) TableName() string { return "glowup_jobs" }

func (j *Job) IsTerminal() bool {
	return j.Status == StatusDone || j.Status == StatusError
}

// CreateJobRequest carries the validated submission payload. The before
// image comes either from an explicit URL or from a stored property
// photo; exactly one of the two must be set.
type CreateJobRequest struct {
	RoomType  string `json:"room_type" binding:"required"`
	Style     string `json:"style" binding:"required"`
	BeforeURL string `json:"before_url" binding:"omitempty,url"`
	PhotoID   string `json:"photo_id" binding:"omitempty"`
}

// ImageProvider turns the before image into the restyled after image
// and returns its URL.
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, job *Job) (string, error)
}

type Repository interface {
	Create(ctx context.Context, job *Job) error
	Find(ctx context.Context, id snowflake.ID) (*Job, error)
	Update(ctx context.Context, job *Job) error
	ListByProperty(ctx context.Context, propertyID snowflake.ID) ([]*Job, error)
	ListByUser(ctx context.Context, userID snowflake.ID, limit int) ([]*Job, error)
}

type Service interface {
	// Create consumes quota for the property, persists a pending job
	// and hands it to the background workers.
	Create(ctx context.Context, user *accountdomain.User, property *propertydomain.Property, req CreateJobRequest) (*Job, error)
	Find(ctx context.Context, userID, jobID snowflake.ID) (*Job, error)
	ListByProperty(ctx context.Context, userID, propertyID snowflake.ID) ([]*Job, error)
	History(ctx context.Context, userID snowflake.ID, limit int) ([]*Job, error)
	// Process runs one job to a terminal state. Exposed for workers
	// and for requeueing stuck jobs.
	Process(ctx context.Context, jobID snowflake.ID) error
}

// ErrJobNotFound is returned when a job does not exist or belongs to
// another user.
var ErrJobNotFound = errors.New("glowup: job not found")

// ErrUnsupportedOption is returned when the requested room type or style
// is not in the configured catalog.
var ErrUnsupportedOption = errors.New("glowup: unsupported room type or style")
