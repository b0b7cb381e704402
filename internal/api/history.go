package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cwaldron/scenecast/internal/db"
	"github.com/cwaldron/scenecast/internal/middleware"
	"github.com/cwaldron/scenecast/internal/streaming"
)

// RecordHistoryRequest is the payload for recording a playback position
type RecordHistoryRequest struct {
	PositionSec float64 `json:"position_sec" binding:"min=0"`
	Quality     string  `json:"quality"`
}

// HistoryHandler handles watch history requests
type HistoryHandler struct {
	history *db.WatchHistoryRepository
}

// NewHistoryHandler creates a new watch history handler
func NewHistoryHandler(history *db.WatchHistoryRepository) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// Record handles PUT /scenes/:scene_id/history
func (h *HistoryHandler) Record(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req RecordHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if req.Quality != "" && !streaming.IsValidQuality(req.Quality) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_quality"})
		return
	}

	entry, err := h.history.Upsert(c.Request.Context(), user.ID, c.Param("scene_id"), req.PositionSec, req.Quality)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, entry)
}

// GetForScene handles GET /scenes/:scene_id/history
func (h *HistoryHandler) GetForScene(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	entry, err := h.history.GetForScene(c.Request.Context(), user.ID, c.Param("scene_id"))
	if err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "history_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, entry)
}

// List handles GET /history?limit=N
func (h *HistoryHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.history.ListForUser(c.Request.Context(), user.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

// SetupHistoryRoutes registers the watch history routes (authenticated)
func SetupHistoryRoutes(group *gin.RouterGroup, history *db.WatchHistoryRepository) {
	handler := NewHistoryHandler(history)

	group.PUT("/scenes/:scene_id/history", handler.Record)
	group.GET("/scenes/:scene_id/history", handler.GetForScene)
	group.GET("/history", handler.List)
}
