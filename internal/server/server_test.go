package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	accountrepo "github.com/pixrworth/platform/internal/account/repository"
	appraisaldomain "github.com/pixrworth/platform/internal/appraisal/domain"
	appraisalprovider "github.com/pixrworth/platform/internal/appraisal/provider"
	appraisalrepo "github.com/pixrworth/platform/internal/appraisal/repository"
	appraisalservice "github.com/pixrworth/platform/internal/appraisal/service"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	glowupdomain "github.com/pixrworth/platform/internal/glowup/domain"
	glowupprovider "github.com/pixrworth/platform/internal/glowup/provider"
	glowuprepo "github.com/pixrworth/platform/internal/glowup/repository"
	glowupservice "github.com/pixrworth/platform/internal/glowup/service"
	"github.com/pixrworth/platform/internal/observability"
	obsmetrics "github.com/pixrworth/platform/internal/observability/metrics"
	"github.com/pixrworth/platform/internal/plan"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
	propertyrepo "github.com/pixrworth/platform/internal/property/repository"
	usagedomain "github.com/pixrworth/platform/internal/usage/domain"
	"github.com/pixrworth/platform/internal/usage/period"
	usageservice "github.com/pixrworth/platform/internal/usage/service"
)

const testAPIKey = "pk_test_4b8f0a"

type fixture struct {
	engine *gin.Engine
	db     *gorm.DB
	node   *snowflake.Node
	clk    *clock.FakeClock
	user   *accountdomain.User
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&accountdomain.User{},
		&propertydomain.Property{},
		&propertydomain.Photo{},
		&appraisaldomain.PropertyWorth{},
		&glowupdomain.Job{},
		&usagedomain.LedgerEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	periods := period.NewCalculator(clk, time.UTC)

	catalog := config.DefaultPlanCatalog()
	catalog.Tiers["starter"] = config.PlanTier{Label: "Starter", Limit: &limit}
	resolver := plan.NewResolver(config.NewStaticPlanCatalogHolder(catalog), zap.NewNop())

	accounts := accountrepo.New(gdb)
	ledger := usageservice.NewService(usageservice.ServiceParam{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Accounts: accounts,
		Plans:    resolver,
		Periods:  periods,
	})

	cfg := config.Config{
		HTTPAddr:  ":0",
		Appraisal: config.AppraisalConfig{CacheTTL: 24 * time.Hour},
		GlowUp:    config.GlowUpConfig{PromptTemplate: "Redecorate this %s in %s style"},
	}

	appraisalSvc := appraisalservice.NewService(appraisalservice.ServiceParam{
		Config:   cfg,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     appraisalrepo.New(gdb),
		Provider: appraisalprovider.NewMock(clk),
		Ledger:   ledger,
	})

	glowupSvc := glowupservice.NewService(glowupservice.ServiceParam{
		Config:   cfg,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     glowuprepo.New(gdb),
		Provider: glowupprovider.NewFake(zap.NewNop()),
		Ledger:   ledger,
	})

	provider, err := obsmetrics.NewProvider(nil, obsmetrics.Config{}, nil)
	require.NoError(t, err)
	httpMetrics, err := obsmetrics.NewHTTPMetrics(obsmetrics.Config{}, provider)
	require.NoError(t, err)

	engine := NewEngine(observability.Config{}, httpMetrics)
	NewServer(ServerParams{
		Gin:          engine,
		Cfg:          cfg,
		DB:           gdb,
		GenID:        node,
		Clock:        clk,
		Accounts:     accounts,
		Properties:   propertyrepo.New(gdb),
		AppraisalSvc: appraisalSvc,
		GlowupSvc:    glowupSvc,
		Ledger:       ledger,
	})

	user := &accountdomain.User{
		ID:     node.Generate(),
		Email:  "agent@example.test",
		Plan:   "starter",
		APIKey: testAPIKey,
	}
	require.NoError(t, gdb.Create(user).Error)

	return &fixture{engine: engine, db: gdb, node: node, clk: clk, user: user}
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) createProperty(t *testing.T, title string) *propertydomain.Property {
	t.Helper()

	property := &propertydomain.Property{
		ID:      f.node.Generate(),
		UserID:  f.user.ID,
		Title:   title,
		Slug:    strings.ToLower(title),
		Status:  propertydomain.StatusActive,
		Address: fmt.Sprintf("%s street 1", title),
	}
	require.NoError(t, f.db.Create(property).Error)
	return property
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/usage/summary", nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/usage/summary", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsageSummaryEndpoint(t *testing.T) {
	f := newFixture(t, 5)
	property := f.createProperty(t, "Villa")

	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/worth", property.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/usage/summary", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary usagedomain.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "starter", summary.Plan.Tier)
	assert.Equal(t, 1, summary.Used)
	require.NotNil(t, summary.Remaining)
	assert.Equal(t, 4, *summary.Remaining)
	assert.Equal(t, "2025-06", summary.PeriodKey)
}

func TestQuotaExceededResponse(t *testing.T) {
	f := newFixture(t, 1)

	first := f.createProperty(t, "First")
	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/worth", first.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	second := f.createProperty(t, "Second")
	w = f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/worth", second.ID), "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "quota_exceeded", resp.Error.Type)
	require.NotNil(t, resp.Quota)
	assert.Equal(t, "starter", resp.Quota.Plan.Tier)
	assert.Equal(t, 1, resp.Quota.Used)
	assert.Equal(t, 0, resp.Quota.Remaining)
	assert.Equal(t, "2025-06", resp.Quota.PeriodKey)
	assert.Equal(t, "2025-07-01T00:00:00Z", resp.Quota.ResetsAt)
}

func TestGlowUpEndpoints(t *testing.T) {
	f := newFixture(t, 5)
	property := f.createProperty(t, "Loft")

	body := `{"room_type":"living_room","style":"scandinavian","before_url":"https://cdn.example.test/before.jpg"}`
	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/glowup", property.ID), body)
	require.Equal(t, http.StatusCreated, w.Code)

	var job glowupdomain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, glowupdomain.StatusPending, job.Status)

	w = f.request(t, http.MethodGet, fmt.Sprintf("/api/glowup/jobs/%s", job.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, fmt.Sprintf("/api/properties/%s/glowup/jobs", property.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), job.ID.String())
}

func TestGlowUpValidation(t *testing.T) {
	f := newFixture(t, 5)
	property := f.createProperty(t, "Cabin")

	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/glowup", property.ID), `{"style":"boho"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPropertyOwnership(t *testing.T) {
	f := newFixture(t, 5)

	stranger := &accountdomain.User{ID: f.node.Generate(), Email: "other@example.test", Plan: "starter", APIKey: "pk_other"}
	require.NoError(t, f.db.Create(stranger).Error)

	theirs := &propertydomain.Property{
		ID: f.node.Generate(), UserID: stranger.ID,
		Title: "Foreign", Slug: "foreign", Status: propertydomain.StatusActive, Address: "x",
	}
	require.NoError(t, f.db.Create(theirs).Error)

	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/worth", theirs.ID), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSpyHuntConsumesQuota(t *testing.T) {
	f := newFixture(t, 1)
	property := f.createProperty(t, "Target")

	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/spyhunt", property.ID), "")
	require.Equal(t, http.StatusAccepted, w.Code)

	// The scan counted the property, so an appraisal on it is free but
	// a new property blocks.
	w = f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/worth", property.ID), "")
	assert.Equal(t, http.StatusOK, w.Code)

	other := f.createProperty(t, "Other")
	w = f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/worth", other.ID), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestCreateAndListProperties(t *testing.T) {
	f := newFixture(t, 5)

	body := `{"title":"Seaside Villa","address":"1 Ocean Dr","city":"Miami","state":"FL"}`
	w := f.request(t, http.MethodPost, "/api/properties", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var created propertydomain.Property
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "seaside-villa", created.Slug)

	w = f.request(t, http.MethodGet, "/api/properties", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Seaside Villa")
}

func TestPropertyPhotos(t *testing.T) {
	f := newFixture(t, 5)
	property := f.createProperty(t, "Townhouse")

	body := `{"path":"uploads/townhouse/front.jpg","original_name":"front.jpg","size":482133}`
	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/photos", property.ID), body)
	require.Equal(t, http.StatusCreated, w.Code)

	var photo propertydomain.Photo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &photo))
	assert.Equal(t, property.ID, photo.PropertyID)
	assert.Equal(t, "uploads/townhouse/front.jpg", photo.Path)

	w = f.request(t, http.MethodGet, fmt.Sprintf("/api/properties/%s/photos", property.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "front.jpg")
}

func TestGlowUpFromStoredPhoto(t *testing.T) {
	f := newFixture(t, 5)
	property := f.createProperty(t, "Bungalow")

	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/photos", property.ID),
		`{"path":"uploads/bungalow/kitchen.jpg"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var photo propertydomain.Photo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &photo))

	body := fmt.Sprintf(`{"room_type":"kitchen","style":"scandinavian","photo_id":"%s"}`, photo.ID)
	w = f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/glowup", property.ID), body)
	require.Equal(t, http.StatusCreated, w.Code)

	var job glowupdomain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, photo.Path, job.BeforeURL)

	// Unknown photo id resolves to not found, not a silent fallback.
	body = fmt.Sprintf(`{"room_type":"kitchen","style":"scandinavian","photo_id":"%s"}`, f.node.Generate())
	w = f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/glowup", property.ID), body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Neither a before URL nor a photo id is a bad request.
	w = f.request(t, http.MethodPost, fmt.Sprintf("/api/properties/%s/glowup", property.ID),
		`{"room_type":"kitchen","style":"scandinavian"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPageSizeBounds(t *testing.T) {
	f := newFixture(t, 5)

	w := f.request(t, http.MethodGet, "/api/usage/entries?page_size=999", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(t, http.MethodGet, "/api/usage/entries?page_size=10", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
