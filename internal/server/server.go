// Package server exposes the HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/pixrworth/platform/internal/account"
	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	"github.com/pixrworth/platform/internal/appraisal"
	appraisaldomain "github.com/pixrworth/platform/internal/appraisal/domain"
	"github.com/pixrworth/platform/internal/cache"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/glowup"
	glowupdomain "github.com/pixrworth/platform/internal/glowup/domain"
	"github.com/pixrworth/platform/internal/observability"
	obsmiddleware "github.com/pixrworth/platform/internal/observability/logger"
	obsmetrics "github.com/pixrworth/platform/internal/observability/metrics"
	obstracing "github.com/pixrworth/platform/internal/observability/tracing"
	"github.com/pixrworth/platform/internal/plan"
	"github.com/pixrworth/platform/internal/property"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
	"github.com/pixrworth/platform/internal/ratelimit"
	"github.com/pixrworth/platform/internal/usage"
	usagedomain "github.com/pixrworth/platform/internal/usage/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	account.Module,
	plan.Module,
	property.Module,
	appraisal.Module,
	glowup.Module,
	ratelimit.Module,
	cache.Module,
	usage.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: func(err error) (string, string) {
			return classifyErrorForLog(err), ""
		},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	clock        clock.Clock
	accounts     accountdomain.Repository
	properties   propertydomain.Repository
	appraisalSvc appraisaldomain.Service
	glowupSvc    glowupdomain.Service
	ledger       usagedomain.Ledger
	limiter      *ratelimit.TokenBucket
	authCache    cache.APIKeyCache
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	Clock        clock.Clock
	Accounts     accountdomain.Repository
	Properties   propertydomain.Repository
	AppraisalSvc appraisaldomain.Service
	GlowupSvc    glowupdomain.Service
	Ledger       usagedomain.Ledger
	Limiter      *ratelimit.TokenBucket `optional:"true"`
	AuthCache    cache.APIKeyCache      `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		clock:        p.Clock,
		accounts:     p.Accounts,
		properties:   p.Properties,
		appraisalSvc: p.AppraisalSvc,
		glowupSvc:    p.GlowupSvc,
		ledger:       p.Ledger,
		limiter:      p.Limiter,
		authCache:    p.AuthCache,
		obsMetrics:   p.ObsMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.GET("/usage/summary", s.GetUsageSummary)
	api.GET("/usage/entries", s.ListUsageEntries)

	api.POST("/properties", s.CreateProperty)
	api.GET("/properties", s.ListProperties)
	api.GET("/properties/:id", s.GetProperty)
	api.POST("/properties/:id/photos", s.AddPropertyPhoto)
	api.GET("/properties/:id/photos", s.ListPropertyPhotos)

	api.POST("/properties/:id/worth", s.FetchPropertyWorth)
	api.GET("/properties/:id/worth/history", s.PropertyWorthHistory)
	api.POST("/properties/:id/report", s.GeneratePropertyReport)
	api.POST("/properties/:id/spyhunt", s.StartSpyHunt)

	api.POST("/properties/:id/glowup", s.GlowUpRateLimit(), s.CreateGlowUpJob)
	api.GET("/properties/:id/glowup/jobs", s.ListGlowUpJobs)
	api.GET("/glowup/jobs/:id", s.GetGlowUpJob)
	api.GET("/glowup/jobs", s.GlowUpHistory)
}
