package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cwaldron/scenecast/internal/db"
	"github.com/cwaldron/scenecast/internal/logger"
	"github.com/cwaldron/scenecast/internal/models"
	"github.com/cwaldron/scenecast/internal/pathmap"
)

// PathMappingRequest is the payload for creating or updating a mapping
type PathMappingRequest struct {
	ExternalPrefix string `json:"external_prefix" binding:"required"`
	LocalPrefix    string `json:"local_prefix" binding:"required"`
}

// PathMappingHandler manages the path mapping table. Changes are written
// to the database and pushed into the in-memory mapper immediately.
type PathMappingHandler struct {
	mappings *db.PathMappingRepository
	mapper   *pathmap.Mapper
}

// NewPathMappingHandler creates a new path mapping handler
func NewPathMappingHandler(mappings *db.PathMappingRepository, mapper *pathmap.Mapper) *PathMappingHandler {
	return &PathMappingHandler{mappings: mappings, mapper: mapper}
}

// List handles GET /pathmappings
func (h *PathMappingHandler) List(c *gin.Context) {
	mappings, err := h.mappings.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings, "count": len(mappings)})
}

// Create handles POST /pathmappings
func (h *PathMappingHandler) Create(c *gin.Context) {
	var req PathMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	mapping := models.NewPathMapping(req.ExternalPrefix, req.LocalPrefix)
	if err := h.mappings.Create(c.Request.Context(), mapping); err != nil {
		if db.IsDuplicate(err) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "duplicate_prefix"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	h.reloadMapper(c.Request.Context())
	c.JSON(http.StatusCreated, mapping)
}

// Update handles PUT /pathmappings/:mapping_id
func (h *PathMappingHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("mapping_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id"})
		return
	}

	var req PathMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	mapping, err := h.mappings.Update(c.Request.Context(), id, req.ExternalPrefix, req.LocalPrefix)
	if err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "mapping_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	h.reloadMapper(c.Request.Context())
	c.JSON(http.StatusOK, mapping)
}

// Delete handles DELETE /pathmappings/:mapping_id
func (h *PathMappingHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("mapping_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id"})
		return
	}

	if err := h.mappings.Delete(c.Request.Context(), id); err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "mapping_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	h.reloadMapper(c.Request.Context())
	c.JSON(http.StatusOK, MessageResponse{Message: "mapping deleted"})
}

func (h *PathMappingHandler) reloadMapper(ctx context.Context) {
	mappings, err := h.mappings.List(ctx)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to reload path mappings")
		return
	}
	h.mapper.SetMappings(ToMapperEntries(mappings))
}

// ToMapperEntries converts persisted mappings to the in-memory form
func ToMapperEntries(mappings []models.PathMapping) []pathmap.Mapping {
	out := make([]pathmap.Mapping, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, pathmap.Mapping{
			ExternalPrefix: m.ExternalPrefix,
			LocalPrefix:    m.LocalPrefix,
		})
	}
	return out
}

// SetupPathMappingRoutes registers the path mapping routes (admin only)
func SetupPathMappingRoutes(group *gin.RouterGroup, mappings *db.PathMappingRepository, mapper *pathmap.Mapper) {
	handler := NewPathMappingHandler(mappings, mapper)

	group.GET("/pathmappings", handler.List)
	group.POST("/pathmappings", handler.Create)
	group.PUT("/pathmappings/:mapping_id", handler.Update)
	group.DELETE("/pathmappings/:mapping_id", handler.Delete)
}
