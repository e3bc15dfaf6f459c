package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	usagedomain "github.com/pixrworth/platform/internal/usage/domain"
)

func (s *Server) FetchPropertyWorth(c *gin.Context) {
	user, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}

	worth, cached, err := s.appraisalSvc.FetchValuation(c.Request.Context(), user, property)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"worth":  worth,
		"cached": cached,
	})
}

func (s *Server) PropertyWorthHistory(c *gin.Context) {
	_, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "12"))
	history, err := s.appraisalSvc.History(c.Request.Context(), property.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// GeneratePropertyReport assembles the seller-facing report: current
// worth, trend history and finished glow-ups. The report is metered as
// its own action, so a report on an uncounted property consumes quota.
func (s *Server) GeneratePropertyReport(c *gin.Context) {
	user, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := s.ledger.EnsureUsage(ctx, user, property.ID, usagedomain.ActionReport); err != nil {
		AbortWithError(c, err)
		return
	}

	history, err := s.appraisalSvc.History(ctx, property.ID, 12)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	jobs, err := s.glowupSvc.ListByProperty(ctx, user.ID, property.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.ledger.SummaryFor(ctx, user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property":      property,
		"worth_history": history,
		"glowup_jobs":   jobs,
		"usage":         summary,
		"generated_at":  s.clock.Now().UTC(),
	})
}

// StartSpyHunt meters a competitor scan for the property. The scan
// pipeline itself is driven elsewhere; this endpoint is the quota gate
// and acknowledgement.
func (s *Server) StartSpyHunt(c *gin.Context) {
	user, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}

	if err := s.ledger.EnsureUsage(c.Request.Context(), user, property.ID, usagedomain.ActionSpyHunt); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"property_id": property.ID,
		"status":      "queued",
	})
}
