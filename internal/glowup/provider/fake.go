// Package provider contains the glow-up image provider adapters.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/pixrworth/platform/internal/glowup/domain"
)

// Fake derives the after URL from the before URL without calling any
// external model. It keeps local development and tests offline.
type Fake struct {
	log *zap.Logger
}

func NewFake(log *zap.Logger) *Fake {
	return &Fake{log: log}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Generate(_ context.Context, job *domain.Job) (string, error) {
	parsed, err := url.Parse(job.BeforeURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("fake glowup: invalid source url %q", job.BeforeURL)
	}

	f.log.Info("fake glowup generate",
		zap.Int64("job_id", int64(job.ID)),
		zap.String("room_type", job.RoomType),
		zap.String("style", job.Style))

	ext := path.Ext(parsed.Path)
	if ext == "" {
		ext = ".jpg"
	}
	base := strings.TrimSuffix(parsed.Path, ext)
	parsed.Path = fmt.Sprintf("%s-glowup-%s%s", base, strings.ToLower(job.Style), ext)
	return parsed.String(), nil
}
