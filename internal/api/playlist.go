package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cwaldron/scenecast/internal/db"
	"github.com/cwaldron/scenecast/internal/middleware"
	"github.com/cwaldron/scenecast/internal/models"
)

// CreatePlaylistRequest is the payload for playlist creation
type CreatePlaylistRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// AddPlaylistItemRequest is the payload for appending a scene
type AddPlaylistItemRequest struct {
	SceneID string `json:"scene_id" binding:"required"`
}

// PlaylistHandler handles playlist requests
type PlaylistHandler struct {
	playlists *db.PlaylistRepository
}

// NewPlaylistHandler creates a new playlist handler
func NewPlaylistHandler(playlists *db.PlaylistRepository) *PlaylistHandler {
	return &PlaylistHandler{playlists: playlists}
}

// Create handles POST /playlists
func (h *PlaylistHandler) Create(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req CreatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	playlist := models.NewPlaylist(user.ID, req.Name)
	if err := h.playlists.Create(c.Request.Context(), playlist); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, playlist)
}

// List handles GET /playlists
func (h *PlaylistHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	playlists, err := h.playlists.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"playlists": playlists, "count": len(playlists)})
}

// Get handles GET /playlists/:playlist_id
func (h *PlaylistHandler) Get(c *gin.Context) {
	playlist, ok := h.ownedPlaylist(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, playlist)
}

// AddItem handles POST /playlists/:playlist_id/items
func (h *PlaylistHandler) AddItem(c *gin.Context) {
	playlist, ok := h.ownedPlaylist(c)
	if !ok {
		return
	}

	var req AddPlaylistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	item, err := h.playlists.AddItem(c.Request.Context(), playlist.ID, req.SceneID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, item)
}

// RemoveItem handles DELETE /playlists/:playlist_id/items/:item_id
func (h *PlaylistHandler) RemoveItem(c *gin.Context) {
	playlist, ok := h.ownedPlaylist(c)
	if !ok {
		return
	}

	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id"})
		return
	}

	if err := h.playlists.RemoveItem(c.Request.Context(), playlist.ID, itemID); err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "item_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "item removed"})
}

// Delete handles DELETE /playlists/:playlist_id
func (h *PlaylistHandler) Delete(c *gin.Context) {
	playlist, ok := h.ownedPlaylist(c)
	if !ok {
		return
	}

	if err := h.playlists.Delete(c.Request.Context(), playlist.ID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "playlist deleted"})
}

// ownedPlaylist loads the playlist and enforces that the caller owns it
func (h *PlaylistHandler) ownedPlaylist(c *gin.Context) (*models.Playlist, bool) {
	user, _ := middleware.CurrentUser(c)

	id, err := uuid.Parse(c.Param("playlist_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id"})
		return nil, false
	}

	playlist, err := h.playlists.GetByID(c.Request.Context(), id)
	if err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "playlist_not_found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return nil, false
	}

	if playlist.UserID != user.ID && !user.IsAdmin {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return nil, false
	}
	return playlist, true
}

// SetupPlaylistRoutes registers the playlist routes (authenticated)
func SetupPlaylistRoutes(group *gin.RouterGroup, playlists *db.PlaylistRepository) {
	handler := NewPlaylistHandler(playlists)

	group.POST("/playlists", handler.Create)
	group.GET("/playlists", handler.List)
	group.GET("/playlists/:playlist_id", handler.Get)
	group.DELETE("/playlists/:playlist_id", handler.Delete)
	group.POST("/playlists/:playlist_id/items", handler.AddItem)
	group.DELETE("/playlists/:playlist_id/items/:item_id", handler.RemoveItem)
}
