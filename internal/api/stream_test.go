package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwaldron/scenecast/internal/metadata"
	"github.com/cwaldron/scenecast/internal/streaming"
)

type fakeManager struct {
	sess     *streaming.Session
	err      error
	lastErr  *streaming.TranscodeError
	gotStart []float64
}

func (f *fakeManager) GetOrCreate(_ context.Context, _ streaming.SessionKey, startSec float64) (*streaming.Session, error) {
	f.gotStart = append(f.gotStart, startSec)
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

func (f *fakeManager) Lookup(streaming.SessionKey) (*streaming.Session, bool) {
	return f.sess, f.sess != nil
}

func (f *fakeManager) LookupError(streaming.SessionKey) *streaming.TranscodeError {
	return f.lastErr
}

type stubResolver struct {
	scene *metadata.Scene
	err   error
}

func (s stubResolver) ResolveScene(context.Context, string) (*metadata.Scene, error) {
	return s.scene, s.err
}

type stubPaths struct{}

func (stubPaths) Translate(p string) (string, error) { return p, nil }

func newStreamRouter(mgr *fakeManager, resolver stubResolver, wait time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupStreamRoutes(router.Group("/api"), mgr, resolver, stubPaths{}, wait, 2)
	return router
}

func newStreamSession(t *testing.T, duration float64) *streaming.Session {
	t.Helper()
	key := streaming.SessionKey{SceneID: "scene-1", Quality: streaming.Quality720p}
	return streaming.NewSession(uuid.New(), key, "/media/scene.mp4", t.TempDir(),
		duration, 2, 0, "master-playlist", "media-playlist")
}

func TestStream_MasterPlaylist(t *testing.T) {
	sess := newStreamSession(t, 600)
	router := newStreamRouter(&fakeManager{sess: sess}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/master.m3u8", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, streaming.PlaylistContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "master-playlist", w.Body.String())
}

func TestStream_MediaPlaylist(t *testing.T) {
	sess := newStreamSession(t, 600)
	router := newStreamRouter(&fakeManager{sess: sess}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/index.m3u8", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "media-playlist", w.Body.String())
}

func TestStream_PlaylistStartOffset(t *testing.T) {
	sess := newStreamSession(t, 600)
	mgr := &fakeManager{sess: sess}
	router := newStreamRouter(mgr, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/master.m3u8?start=300", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mgr.gotStart, 1)
	assert.Equal(t, 300.0, mgr.gotStart[0])
}

func TestStream_PlaylistInvalidStart(t *testing.T) {
	sess := newStreamSession(t, 600)
	mgr := &fakeManager{sess: sess}
	router := newStreamRouter(mgr, stubResolver{}, time.Second)

	for _, start := range []string{"abc", "-5"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/index.m3u8?start="+start, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "start=%s", start)
		assert.Contains(t, w.Body.String(), "invalid_start")
	}
	assert.Empty(t, mgr.gotStart, "invalid start must be rejected before session creation")
}

func TestStream_InvalidQuality(t *testing.T) {
	router := newStreamRouter(&fakeManager{}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/999p/master.m3u8", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_quality")
}

func TestStream_DirectQualityHasNoPlaylists(t *testing.T) {
	router := newStreamRouter(&fakeManager{}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/direct/master.m3u8", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStream_SceneNotFound(t *testing.T) {
	router := newStreamRouter(&fakeManager{err: metadata.ErrSceneNotFound}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/ghost/720p/master.m3u8", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "scene_not_found")
}

func TestStream_MetadataNotInitialized(t *testing.T) {
	router := newStreamRouter(&fakeManager{err: metadata.ErrNotInitialized}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/master.m3u8", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "metadata_unavailable")
}

func TestStream_BadSegmentName(t *testing.T) {
	router := newStreamRouter(&fakeManager{}, stubResolver{}, time.Second)

	for _, name := range []string{"segment_abc.ts", "seg_001.ts", "segment_001.mp4"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/"+name, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "segment name %q", name)
	}
}

// A segment request with no live session is a stale-playlist client; it
// must get 404 without a transcoder being spawned.
func TestStream_SegmentWithoutSession(t *testing.T) {
	mgr := &fakeManager{}
	router := newStreamRouter(mgr, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/segment_000.ts", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "session_not_found")
	assert.Empty(t, mgr.gotStart, "segment request must not create a session")
}

func TestStream_SegmentOutOfRange(t *testing.T) {
	sess := newStreamSession(t, 60) // 30 segments, 0..29
	router := newStreamRouter(&fakeManager{sess: sess}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/segment_030.ts", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "segment_out_of_range")
}

func TestStream_SegmentCompleted(t *testing.T) {
	sess := newStreamSession(t, 600)
	segPath := filepath.Join(sess.OutputDir, streaming.SegmentFilename(3))
	require.NoError(t, os.WriteFile(segPath, []byte("ts-bytes"), 0o644))
	sess.Index().Mark(3, streaming.SegmentCompleted, nil)

	router := newStreamRouter(&fakeManager{sess: sess}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/segment_003.ts", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ts-bytes", w.Body.String())
	assert.Equal(t, streaming.SegmentContentType, w.Header().Get("Content-Type"))
}

func TestStream_SegmentWaitTimeout(t *testing.T) {
	sess := newStreamSession(t, 600)
	router := newStreamRouter(&fakeManager{sess: sess}, stubResolver{}, 30*time.Millisecond)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/segment_000.ts", nil))

	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "segment_timeout")
}

func TestStream_SegmentFailed(t *testing.T) {
	sess := newStreamSession(t, 600)
	sess.Index().Mark(0, streaming.SegmentFailed, nil)
	router := newStreamRouter(&fakeManager{sess: sess}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/segment_000.ts", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "segment_failed")
}

func TestStream_SessionGone(t *testing.T) {
	sess := newStreamSession(t, 600)
	sess.Index().Close()
	router := newStreamRouter(&fakeManager{sess: sess}, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/segment_000.ts", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "session_gone")
}

func TestStream_SessionGoneWithRecordedFailure(t *testing.T) {
	sess := newStreamSession(t, 600)
	sess.Index().Close()
	mgr := &fakeManager{
		sess:    sess,
		lastErr: streaming.NewTranscodeError(streaming.ErrorTypeCrash, "transcoder crashed", nil),
	}
	router := newStreamRouter(mgr, stubResolver{}, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/720p/segment_000.ts", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "transcoder_failed")
}

func TestStream_Direct(t *testing.T) {
	src := filepath.Join(t.TempDir(), "scene.mp4")
	require.NoError(t, os.WriteFile(src, []byte("mp4-bytes"), 0o644))

	resolver := stubResolver{scene: &metadata.Scene{ID: "scene-1", Path: src, DurationSec: 600}}
	router := newStreamRouter(&fakeManager{}, resolver, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/direct", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4-bytes", w.Body.String())
}

func TestStream_DirectNotStreamable(t *testing.T) {
	resolver := stubResolver{scene: &metadata.Scene{ID: "scene-1"}}
	router := newStreamRouter(&fakeManager{}, resolver, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stream/scene-1/direct", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "scene_not_streamable")
}
