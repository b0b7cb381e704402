package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cwaldron/scenecast/internal/streaming"
)

// SessionInfo is the admin view of one live session
type SessionInfo struct {
	ID            string                  `json:"id"`
	SceneID       string                  `json:"scene_id"`
	Quality       string                  `json:"quality"`
	State         string                  `json:"state"`
	StartSec      float64                 `json:"start_sec"`
	DurationSec   float64                 `json:"duration_sec"`
	TotalSegments int                     `json:"total_segments"`
	IdleSec       float64                 `json:"idle_sec"`
	Segments      streaming.IndexSnapshot `json:"segments"`
}

// SegmentEntry is one segment's tracked state in the detail view
type SegmentEntry struct {
	Number      int        `json:"number"`
	State       string     `json:"state"`
	Retries     int        `json:"retries,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SessionHandler exposes the session registry for operators
type SessionHandler struct {
	manager *streaming.Manager
}

// NewSessionHandler creates a new session admin handler
func NewSessionHandler(manager *streaming.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// List handles GET /sessions
func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.manager.Sessions()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sessionInfo(sess))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].SceneID+infos[i].Quality < infos[j].SceneID+infos[j].Quality
	})

	c.JSON(http.StatusOK, gin.H{"sessions": infos, "count": len(infos)})
}

// Status handles GET /sessions/:scene_id/:quality/status
func (h *SessionHandler) Status(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionInfo(sess))
}

// Segments handles GET /sessions/:scene_id/:quality/segments
func (h *SessionHandler) Segments(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	entries := sess.Index().Entries()
	out := make([]SegmentEntry, 0, len(entries))
	for n, meta := range entries {
		entry := SegmentEntry{
			Number:    n,
			State:     meta.State.String(),
			Retries:   meta.Retries,
			LastError: meta.LastError,
		}
		if !meta.StartedAt.IsZero() {
			t := meta.StartedAt
			entry.StartedAt = &t
		}
		if !meta.CompletedAt.IsZero() {
			t := meta.CompletedAt
			entry.CompletedAt = &t
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })

	c.JSON(http.StatusOK, gin.H{"segments": out, "total": sess.Total})
}

// Destroy handles DELETE /sessions/:scene_id/:quality
func (h *SessionHandler) Destroy(c *gin.Context) {
	key := streaming.SessionKey{SceneID: c.Param("scene_id"), Quality: c.Param("quality")}
	if _, ok := h.manager.Lookup(key); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session_not_found"})
		return
	}

	h.manager.Destroy(key)
	c.JSON(http.StatusOK, MessageResponse{Message: "session destroyed"})
}

func (h *SessionHandler) lookup(c *gin.Context) (*streaming.Session, bool) {
	key := streaming.SessionKey{SceneID: c.Param("scene_id"), Quality: c.Param("quality")}
	sess, ok := h.manager.Lookup(key)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "No live session for this scene and quality",
		})
		return nil, false
	}
	return sess, true
}

func sessionInfo(sess *streaming.Session) SessionInfo {
	return SessionInfo{
		ID:            sess.ID.String(),
		SceneID:       sess.Key.SceneID,
		Quality:       sess.Key.Quality,
		State:         sess.State().String(),
		StartSec:      sess.StartSec(),
		DurationSec:   sess.Duration,
		TotalSegments: sess.Total,
		IdleSec:       sess.IdleDuration().Seconds(),
		Segments:      sess.Index().Snapshot(),
	}
}

// SetupSessionRoutes registers the session admin routes
func SetupSessionRoutes(apiGroup *gin.RouterGroup, manager *streaming.Manager) {
	handler := NewSessionHandler(manager)

	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.GET("", handler.List)
	sessionGroup.GET("/:scene_id/:quality/status", handler.Status)
	sessionGroup.GET("/:scene_id/:quality/segments", handler.Segments)
	sessionGroup.DELETE("/:scene_id/:quality", handler.Destroy)
}
