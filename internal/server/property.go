package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
	propertydomain "github.com/pixrworth/platform/internal/property/domain"
	"github.com/pixrworth/platform/pkg/db/pagination"
)

type createPropertyRequest struct {
	Title      string   `json:"title" binding:"required"`
	Address    string   `json:"address" binding:"required"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PostalCode string   `json:"postal_code"`
	Country    string   `json:"country"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	PlaceID    string   `json:"place_id"`
}

func (s *Server) CreateProperty(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	property := &propertydomain.Property{
		ID:         s.genID.Generate(),
		UserID:     user.ID,
		Title:      req.Title,
		Slug:       slug.Make(req.Title),
		Status:     propertydomain.StatusActive,
		Address:    req.Address,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Lat:        req.Lat,
		Lng:        req.Lng,
		PlaceID:    req.PlaceID,
	}
	if err := s.properties.Create(c.Request.Context(), property); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, property)
}

func (s *Server) ListProperties(c *gin.Context) {
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

	properties, pageInfo, err := s.properties.ListByUser(c.Request.Context(), user.ID, p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties": properties,
		"page_info":  pageInfo,
	})
}

func (s *Server) GetProperty(c *gin.Context) {
	user, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}
	_ = user

	c.JSON(http.StatusOK, property)
}

type addPhotoRequest struct {
	Path         string `json:"path" binding:"required"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size" binding:"omitempty,gte=0"`
}

func (s *Server) AddPropertyPhoto(c *gin.Context) {
	_, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}

	var req addPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	photo := &propertydomain.Photo{
		ID:           s.genID.Generate(),
		PropertyID:   property.ID,
		Path:         req.Path,
		OriginalName: req.OriginalName,
		Size:         req.Size,
	}
	if err := s.properties.AddPhoto(c.Request.Context(), photo); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, photo)
}

func (s *Server) ListPropertyPhotos(c *gin.Context) {
	_, property, ok := s.ownedProperty(c)
	if !ok {
		return
	}

	photos, err := s.properties.Photos(c.Request.Context(), property.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

// ownedProperty resolves the :id path param to a property owned by the
// authenticated user, aborting the request otherwise.
func (s *Server) ownedProperty(c *gin.Context) (*accountdomain.User, *propertydomain.Property, bool) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, nil, false
	}

	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return nil, nil, false
	}

	property, err := s.properties.FindOwned(c.Request.Context(), user.ID, id)
	if err != nil {
		AbortWithError(c, err)
		return nil, nil, false
	}
	return user, property, true
}
