package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cwaldron/scenecast/internal/logger"
	"github.com/cwaldron/scenecast/internal/metadata"
	"github.com/cwaldron/scenecast/internal/pathmap"
	"github.com/cwaldron/scenecast/internal/streaming"
)

// segmentNameRe matches timeline-numbered segment requests
var segmentNameRe = regexp.MustCompile(`^segment_(\d+)\.ts$`)

// sessionManager defines the interface required by StreamHandler
type sessionManager interface {
	GetOrCreate(ctx context.Context, key streaming.SessionKey, startSec float64) (*streaming.Session, error)
	Lookup(key streaming.SessionKey) (*streaming.Session, bool)
	LookupError(key streaming.SessionKey) *streaming.TranscodeError
}

// StreamHandler serves the HLS playlist and segment endpoints
type StreamHandler struct {
	manager         sessionManager
	resolver        streaming.SceneResolver
	paths           streaming.PathTranslator
	segmentWait     time.Duration
	segmentDuration int
}

// NewStreamHandler creates a new stream handler instance
func NewStreamHandler(manager sessionManager, resolver streaming.SceneResolver, paths streaming.PathTranslator, segmentWait time.Duration, segmentDuration int) *StreamHandler {
	return &StreamHandler{
		manager:         manager,
		resolver:        resolver,
		paths:           paths,
		segmentWait:     segmentWait,
		segmentDuration: segmentDuration,
	}
}

// GetMasterPlaylist handles GET /stream/:scene_id/:quality/master.m3u8.
// Requesting a playlist creates the session on demand, at the optional
// ?start=T offset, and blocks until its first segment exists.
func (h *StreamHandler) GetMasterPlaylist(c *gin.Context) {
	startSec, ok := h.startParam(c)
	if !ok {
		return
	}
	sess, ok := h.ensureSession(c, startSec)
	if !ok {
		return
	}
	sess.Touch()
	c.Data(http.StatusOK, streaming.PlaylistContentType, []byte(sess.MasterPlaylist))
}

// GetMediaPlaylist handles GET /stream/:scene_id/:quality/index.m3u8.
// The playlist declares the full timeline up-front and is byte-identical
// across requests for the same session, regardless of ?start.
func (h *StreamHandler) GetMediaPlaylist(c *gin.Context) {
	startSec, ok := h.startParam(c)
	if !ok {
		return
	}
	sess, ok := h.ensureSession(c, startSec)
	if !ok {
		return
	}
	sess.Touch()
	c.Data(http.StatusOK, streaming.PlaylistContentType, []byte(sess.MediaPlaylist))
}

// startParam parses the optional ?start=T seconds offset
func (h *StreamHandler) startParam(c *gin.Context) (float64, bool) {
	raw := c.Query("start")
	if raw == "" {
		return 0, true
	}
	startSec, err := strconv.ParseFloat(raw, 64)
	if err != nil || startSec < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_start",
			Message: "start must be a non-negative number of seconds",
		})
		return 0, false
	}
	return startSec, true
}

// GetSegment handles GET /stream/:scene_id/:quality/segment_NNN.ts.
// Blocks until the segment is produced, the wait timeout elapses, or the
// session dies.
func (h *StreamHandler) GetSegment(c *gin.Context) {
	matches := segmentNameRe.FindStringSubmatch(c.Param("segment"))
	if matches == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_segment",
			Message: "Segment name must be segment_NNN.ts",
		})
		return
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_segment"})
		return
	}

	key, ok := h.sessionKey(c)
	if !ok {
		return
	}

	// Segment requests never spawn a transcoder: a client holding a
	// playlist from a torn-down session must re-request the playlist.
	if _, live := h.manager.Lookup(key); !live {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "No active session for this stream, request its playlist first",
		})
		return
	}

	sess, ok := h.ensureSessionAt(c, n)
	if !ok {
		return
	}

	if n >= sess.Total {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "segment_out_of_range",
			Message: "Segment number beyond the end of the asset",
		})
		return
	}

	sess.Touch()

	outcome := sess.Index().WaitFor(c.Request.Context(), n, h.segmentWait)
	switch outcome {
	case streaming.WaitCompleted:
		sess.Touch()
		c.Header("Content-Type", streaming.SegmentContentType)
		c.File(filepath.Join(sess.OutputDir, streaming.SegmentFilename(n)))
	case streaming.WaitTimeout:
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Error:   "segment_timeout",
			Message: "Segment was not produced in time",
		})
	case streaming.WaitFailed:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "segment_failed",
			Message: "Transcoding failed for this segment",
		})
	case streaming.WaitSessionGone:
		if tErr := h.manager.LookupError(sess.Key); tErr != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "transcoder_failed",
				Message: tErr.Message,
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "session_gone",
			Message: "Session was torn down, retry to start a new one",
		})
	}
}

// GetDirect handles GET /stream/:scene_id/direct. Serves the source file
// as-is with range support; no transcoder is involved.
func (h *StreamHandler) GetDirect(c *gin.Context) {
	sceneID := c.Param("scene_id")

	scene, err := h.resolver.ResolveScene(c.Request.Context(), sceneID)
	if err != nil {
		writeResolveError(c, err)
		return
	}
	if !scene.IsStreamable() {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "scene_not_streamable",
			Message: "Scene has no source file",
		})
		return
	}

	localPath, err := h.paths.Translate(scene.Path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "path_not_mapped",
			Message: "Scene file is not reachable on this host",
		})
		return
	}

	c.File(localPath)
}

// sessionKey validates the route params and builds the session key.
// Writes the error response itself on failure.
func (h *StreamHandler) sessionKey(c *gin.Context) (streaming.SessionKey, bool) {
	sceneID := c.Param("scene_id")
	quality := c.Param("quality")

	if sceneID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing_scene_id"})
		return streaming.SessionKey{}, false
	}
	if quality == streaming.QualityDirect {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_quality",
			Message: "Direct playback has no playlists, use the direct endpoint",
		})
		return streaming.SessionKey{}, false
	}
	if !streaming.IsValidQuality(quality) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_quality",
			Message: "Unknown quality level",
		})
		return streaming.SessionKey{}, false
	}

	return streaming.SessionKey{SceneID: sceneID, Quality: quality}, true
}

// ensureSession returns the live session for the route params, creating
// it at startSec if needed.
func (h *StreamHandler) ensureSession(c *gin.Context, startSec float64) (*streaming.Session, bool) {
	key, ok := h.sessionKey(c)
	if !ok {
		return nil, false
	}

	sess, err := h.manager.GetOrCreate(c.Request.Context(), key, startSec)
	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("session_key", key.String()).
			Msg("Failed to get or create session")
		h.writeSessionError(c, err)
		return nil, false
	}
	return sess, true
}

// ensureSessionAt is ensureSession with the start position derived from a
// requested segment number, so a seek to an unproduced region restarts
// the transcoder there.
func (h *StreamHandler) ensureSessionAt(c *gin.Context, n int) (*streaming.Session, bool) {
	return h.ensureSession(c, float64(n*h.segmentDuration))
}

func (h *StreamHandler) writeSessionError(c *gin.Context, err error) {
	var tErr *streaming.TranscodeError

	switch {
	case errors.Is(err, metadata.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "metadata_unavailable",
			Message: "Metadata service is not configured yet",
		})
	case errors.Is(err, metadata.ErrSceneNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "scene_not_found",
			Message: "Unknown scene",
		})
	case errors.Is(err, streaming.ErrSceneNotStreamable):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "scene_not_streamable",
			Message: "Scene has no source file",
		})
	case errors.Is(err, streaming.ErrQualityNotAllowed), errors.Is(err, streaming.ErrUnknownQuality):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_quality",
			Message: err.Error(),
		})
	case errors.Is(err, pathmap.ErrNotMapped):
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "path_not_mapped",
			Message: "Scene file is not reachable on this host",
		})
	case errors.Is(err, streaming.ErrManagerStopped):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "shutting_down",
			Message: "Server is shutting down",
		})
	case errors.As(err, &tErr):
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "transcoder_failed",
			Message: tErr.Message,
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to start streaming session",
		})
	}
}

// SetupStreamRoutes registers the HLS streaming routes
func SetupStreamRoutes(apiGroup *gin.RouterGroup, manager sessionManager, resolver streaming.SceneResolver, paths streaming.PathTranslator, segmentWait time.Duration, segmentDuration int) {
	handler := NewStreamHandler(manager, resolver, paths, segmentWait, segmentDuration)

	streamGroup := apiGroup.Group("/stream")

	streamGroup.GET("/:scene_id/direct", handler.GetDirect)
	// Gin matches the literal filenames before the :segment wildcard
	streamGroup.GET("/:scene_id/:quality/master.m3u8", handler.GetMasterPlaylist)
	streamGroup.GET("/:scene_id/:quality/index.m3u8", handler.GetMediaPlaylist)
	streamGroup.GET("/:scene_id/:quality/:segment", handler.GetSegment)
}
