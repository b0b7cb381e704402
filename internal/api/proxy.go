package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cwaldron/scenecast/internal/logger"
	"github.com/cwaldron/scenecast/internal/metadata"
	"github.com/cwaldron/scenecast/internal/streaming"
)

// ProxyHandler relays pre-packaged upstream variants through this server
// so clients never talk to the metadata service's CDN directly. Manifest
// responses are rewritten to route every segment back through the proxy.
type ProxyHandler struct {
	resolver streaming.SceneResolver
	http     *http.Client
}

// NewProxyHandler creates a new variant proxy handler
func NewProxyHandler(resolver streaming.SceneResolver) *ProxyHandler {
	return &ProxyHandler{
		resolver: resolver,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetManifest handles GET /proxy/:scene_id/:variant/manifest.m3u8
func (h *ProxyHandler) GetManifest(c *gin.Context) {
	variant, ok := h.lookupVariant(c)
	if !ok {
		return
	}

	manifestURL, err := url.Parse(variant.ManifestURL)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: "Variant manifest URL is invalid",
		})
		return
	}

	body, contentType, status, err := h.fetch(c, manifestURL.String(), "")
	if err != nil || status != http.StatusOK {
		logger.Log.Warn().
			Err(err).
			Int("status", status).
			Str("url", redacted(manifestURL)).
			Msg("Upstream manifest fetch failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: "Failed to fetch variant manifest",
		})
		return
	}
	defer body.Close() // nolint:errcheck // read-only body

	raw, err := io.ReadAll(body)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "upstream_error"})
		return
	}

	rewritten := rewriteManifest(string(raw), manifestURL, c.Param("scene_id"), c.Param("variant"))

	if contentType == "" {
		contentType = streaming.PlaylistContentType
	}
	c.Data(http.StatusOK, contentType, []byte(rewritten))
}

// GetSegment handles GET /proxy/:scene_id/:variant/segment?url=...
// forwarding the client's Range header so scrubbing works.
func (h *ProxyHandler) GetSegment(c *gin.Context) {
	variant, ok := h.lookupVariant(c)
	if !ok {
		return
	}

	target, err := url.Parse(c.Query("url"))
	if err != nil || !target.IsAbs() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Segment url parameter must be absolute",
		})
		return
	}

	// Only relay back to the host the variant manifest came from
	manifestURL, err := url.Parse(variant.ManifestURL)
	if err != nil || target.Host != manifestURL.Host {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Segment url does not belong to this variant",
		})
		return
	}
	target.User = nil

	body, contentType, status, err := h.fetch(c, target.String(), c.GetHeader("Range"))
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: "Failed to fetch segment from upstream",
		})
		return
	}
	defer body.Close() // nolint:errcheck // streamed body

	if status != http.StatusOK && status != http.StatusPartialContent {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: "Upstream returned an error for this segment",
		})
		return
	}

	if contentType == "" {
		contentType = streaming.SegmentContentType
	}
	c.Status(status)
	c.Header("Content-Type", contentType)
	if _, err := io.Copy(c.Writer, body); err != nil {
		logger.Log.Debug().Err(err).Msg("Client disconnected during segment relay")
	}
}

func (h *ProxyHandler) lookupVariant(c *gin.Context) (metadata.Variant, bool) {
	sceneID := c.Param("scene_id")
	label := c.Param("variant")

	scene, err := h.resolver.ResolveScene(c.Request.Context(), sceneID)
	if err != nil {
		writeResolveError(c, err)
		return metadata.Variant{}, false
	}

	variant, ok := scene.Variant(label)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "variant_not_found",
			Message: "Scene has no such variant",
		})
		return metadata.Variant{}, false
	}
	return variant, true
}

func (h *ProxyHandler) fetch(c *gin.Context, rawURL, rangeHeader string) (io.ReadCloser, string, int, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", 0, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	return resp.Body, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

// rewriteManifest routes every URI in an upstream media playlist back
// through the proxy. Relative URIs are resolved against the manifest URL
// first; credentials in resolved URLs are dropped.
func rewriteManifest(manifest string, base *url.URL, sceneID, variant string) string {
	var b strings.Builder

	for _, line := range strings.Split(manifest, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			b.WriteString(line)
			b.WriteByte('\n')
			continue
		}

		abs, err := base.Parse(trimmed)
		if err != nil {
			b.WriteString(line)
			b.WriteByte('\n')
			continue
		}
		abs.User = nil

		b.WriteString("/api/proxy/")
		b.WriteString(url.PathEscape(sceneID))
		b.WriteByte('/')
		b.WriteString(url.PathEscape(variant))
		b.WriteString("/segment?url=")
		b.WriteString(url.QueryEscape(abs.String()))
		b.WriteByte('\n')
	}

	return strings.TrimSuffix(b.String(), "\n") + "\n"
}

// redacted renders a URL for logs without credentials or query tokens
func redacted(u *url.URL) string {
	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	return clean.String()
}

// writeResolveError maps metadata lookup failures for proxy and scene
// endpoints.
func writeResolveError(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, metadata.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "metadata_unavailable"})
	case errors.Is(err, metadata.ErrSceneNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "scene_not_found"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
}

// SetupProxyRoutes registers the variant proxy routes
func SetupProxyRoutes(apiGroup *gin.RouterGroup, resolver streaming.SceneResolver) {
	handler := NewProxyHandler(resolver)

	proxyGroup := apiGroup.Group("/proxy")
	proxyGroup.GET("/:scene_id/:variant/manifest.m3u8", handler.GetManifest)
	proxyGroup.GET("/:scene_id/:variant/segment", handler.GetSegment)
}
