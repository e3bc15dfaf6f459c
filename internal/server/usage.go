package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixrworth/platform/pkg/db/pagination"
)

func (s *Server) GetUsageSummary(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.ledger.SummaryFor(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListUsageEntries(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		AbortWithError(c, err)
		return
	}

	entries, pageInfo, err := s.ledger.Entries(c.Request.Context(), user, p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"page_info": pageInfo,
	})
}
