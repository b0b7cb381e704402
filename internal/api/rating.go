package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cwaldron/scenecast/internal/db"
	"github.com/cwaldron/scenecast/internal/middleware"
)

// RateSceneRequest is the payload for rating a scene
type RateSceneRequest struct {
	Stars int `json:"stars" binding:"required,min=1,max=5"`
}

// RatingHandler handles scene rating requests
type RatingHandler struct {
	ratings *db.RatingRepository
}

// NewRatingHandler creates a new rating handler
func NewRatingHandler(ratings *db.RatingRepository) *RatingHandler {
	return &RatingHandler{ratings: ratings}
}

// Rate handles PUT /scenes/:scene_id/rating
func (h *RatingHandler) Rate(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req RateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	rating, err := h.ratings.Upsert(c.Request.Context(), user.ID, c.Param("scene_id"), req.Stars)
	if err != nil {
		if errors.Is(err, db.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_stars"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, rating)
}

// Get handles GET /scenes/:scene_id/rating
func (h *RatingHandler) Get(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	rating, err := h.ratings.GetForScene(c.Request.Context(), user.ID, c.Param("scene_id"))
	if err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "rating_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, rating)
}

// Delete handles DELETE /scenes/:scene_id/rating
func (h *RatingHandler) Delete(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.ratings.Delete(c.Request.Context(), user.ID, c.Param("scene_id")); err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "rating_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "rating deleted"})
}

// SetupRatingRoutes registers the rating routes (authenticated)
func SetupRatingRoutes(group *gin.RouterGroup, ratings *db.RatingRepository) {
	handler := NewRatingHandler(ratings)

	group.PUT("/scenes/:scene_id/rating", handler.Rate)
	group.GET("/scenes/:scene_id/rating", handler.Get)
	group.DELETE("/scenes/:scene_id/rating", handler.Delete)
}
