package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	glowupdomain "github.com/pixrworth/platform/internal/glowup/domain"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
)

func (s *Server) CreateGlowUpJob(c *gin.Context) {
	user, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}

	var req glowupdomain.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	// A stored property photo can serve as the before image in place of
	// an explicit URL.
	if req.BeforeURL == "" && req.PhotoID != "" {
		photoID, err := snowflake.ParseString(req.PhotoID)
		if err != nil {
			AbortWithError(c, propertydomain.ErrPhotoNotFound)
			return
		}
		photo, err := s.properties.FindPhoto(c.Request.Context(), property.ID, photoID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.BeforeURL = photo.Path
	}
	if req.BeforeURL == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	job, err := s.glowupSvc.Create(c.Request.Context(), user, property, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (s *Server) GetGlowUpJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	job, err := s.glowupSvc.Find(c.Request.Context(), user.ID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (s *Server) ListGlowUpJobs(c *gin.Context) {
	user, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}

	jobs, err := s.glowupSvc.ListByProperty(c.Request.Context(), user.ID, property.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) GlowUpHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := s.glowupSvc.History(c.Request.Context(), user.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
