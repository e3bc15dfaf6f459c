package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	glowupdomain "github.com/pixrworth/platform/internal/glowup/domain"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
	usagedomain "github.com/pixrworth/platform/internal/usage/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
	Quota *quotaDetail `json:"quota,omitempty"`
}

// quotaDetail mirrors the upgrade-prompt payload clients render on a
// 429: the plan, where the user stands, and when the window resets.
type quotaDetail struct {
	Plan      quotaPlan `json:"plan"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	PeriodKey string    `json:"period_key"`
	ResetsAt  string    `json:"resets_at"`
}

type quotaPlan struct {
	Tier  string `json:"tier"`
	Label string `json:"label"`
	Limit *int   `json:"limit"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	var quotaErr *usagedomain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return http.StatusTooManyRequests, errorResponse{
			Error: errorPayload{
				Type:    "quota_exceeded",
				Message: "monthly property limit reached for your plan",
			},
			Quota: &quotaDetail{
				Plan: quotaPlan{
					Tier:  quotaErr.Plan.Tier,
					Label: quotaErr.Plan.Label,
					Limit: quotaErr.Plan.Limit,
				},
				Used:      quotaErr.Used,
				Remaining: quotaErr.Remaining,
				PeriodKey: quotaErr.PeriodKey,
				ResetsAt:  quotaErr.ResetsAt.Format(time.RFC3339),
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, simpleError("unauthorized", "unauthorized")
	case errors.Is(err, accountdomain.ErrUserNotFound),
		errors.Is(err, propertydomain.ErrPropertyNotFound),
		errors.Is(err, propertydomain.ErrPhotoNotFound),
		errors.Is(err, glowupdomain.ErrJobNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, simpleError("not_found", "resource not found")
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, simpleError("invalid_request", "invalid request")
	case errors.Is(err, glowupdomain.ErrUnsupportedOption):
		return http.StatusBadRequest, simpleError("invalid_request", err.Error())
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, simpleError("service_unavailable", "service unavailable")
	}

	if isBindingError(err) {
		return http.StatusBadRequest, simpleError("validation_error", "validation error")
	}

	return http.StatusInternalServerError, simpleError("internal_error", "internal server error")
}

func isBindingError(err error) bool {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func simpleError(kind, message string) errorResponse {
	return errorResponse{Error: errorPayload{Type: kind, Message: message}}
}

// classifyErrorForLog keeps expected client failures at warn level so
// error-level logs stay actionable.
func classifyErrorForLog(err error) string {
	var quotaErr *usagedomain.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		return "quota"
	case errors.Is(err, ErrUnauthorized):
		return "auth"
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, accountdomain.ErrUserNotFound),
		errors.Is(err, propertydomain.ErrPropertyNotFound),
		errors.Is(err, propertydomain.ErrPhotoNotFound),
		errors.Is(err, glowupdomain.ErrJobNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
