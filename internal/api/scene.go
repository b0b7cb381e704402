package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cwaldron/scenecast/internal/streaming"
)

// SceneResponse is the client view of a resolved scene, including which
// qualities this server can actually produce for it.
type SceneResponse struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	DurationSec      float64  `json:"duration_sec"`
	SourceWidth      int      `json:"source_width"`
	SourceHeight     int      `json:"source_height"`
	SourceCodec      string   `json:"source_codec"`
	AllowedQualities []string `json:"allowed_qualities"`
	Variants         []string `json:"variants,omitempty"`
}

// SceneHandler resolves scene metadata for clients
type SceneHandler struct {
	resolver streaming.SceneResolver
}

// NewSceneHandler creates a new scene handler
func NewSceneHandler(resolver streaming.SceneResolver) *SceneHandler {
	return &SceneHandler{resolver: resolver}
}

// Get handles GET /scenes/:scene_id
func (h *SceneHandler) Get(c *gin.Context) {
	scene, err := h.resolver.ResolveScene(c.Request.Context(), c.Param("scene_id"))
	if err != nil {
		writeResolveError(c, err)
		return
	}

	resp := SceneResponse{
		ID:           scene.ID,
		Title:        scene.Title,
		DurationSec:  scene.DurationSec,
		SourceWidth:  scene.SourceWidth,
		SourceHeight: scene.SourceHeight,
		SourceCodec:  scene.SourceCodec,
	}
	for _, label := range []string{
		streaming.QualityDirect,
		streaming.Quality2160p,
		streaming.Quality1080p,
		streaming.Quality720p,
		streaming.Quality480p,
		streaming.Quality360p,
	} {
		if streaming.QualityAllowed(label, scene.SourceHeight) {
			resp.AllowedQualities = append(resp.AllowedQualities, label)
		}
	}
	for _, v := range scene.Variants {
		resp.Variants = append(resp.Variants, v.Label)
	}

	c.JSON(http.StatusOK, resp)
}

// SetupSceneRoutes registers the scene metadata routes
func SetupSceneRoutes(apiGroup *gin.RouterGroup, resolver streaming.SceneResolver) {
	handler := NewSceneHandler(resolver)
	apiGroup.GET("/scenes/:scene_id", handler.Get)
}
