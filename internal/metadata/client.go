package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client resolves scenes over the metadata service's HTTP API and caches
// results for a configurable TTL. A zero-value BaseURL means the service
// has not been configured; lookups return ErrNotInitialized so callers
// can surface a retryable condition instead of a hard failure.
type Client struct {
	baseURL  string
	apiKey   string
	cacheTTL time.Duration
	http     *http.Client
	log      zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	scene   *Scene
	expires time.Time
}

// ClientConfig carries the upstream connection settings
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// NewClient creates a metadata client. BaseURL may be empty; the client
// then reports ErrNotInitialized until reconfigured.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		cacheTTL: cfg.CacheTTL,
		http:     &http.Client{Timeout: timeout},
		log:      log,
		cache:    make(map[string]cacheEntry),
	}
}

// Initialized reports whether the client has an upstream to talk to
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL != ""
}

// Configure sets or replaces the upstream connection and drops the cache
func (c *Client) Configure(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.apiKey = apiKey
	c.cache = make(map[string]cacheEntry)
}

// ResolveScene returns the scene record for sceneID, consulting the cache
// first. A cached record is returned as-is until its TTL elapses; negative
// results are not cached.
func (c *Client) ResolveScene(ctx context.Context, sceneID string) (*Scene, error) {
	if sceneID == "" {
		return nil, ErrSceneNotFound
	}

	c.mu.Lock()
	baseURL := c.baseURL
	if entry, ok := c.cache[sceneID]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.scene, nil
	}
	c.mu.Unlock()

	if baseURL == "" {
		return nil, ErrNotInitialized
	}

	scene, err := c.fetch(ctx, baseURL, sceneID)
	if err != nil {
		return nil, err
	}

	if c.cacheTTL > 0 {
		c.mu.Lock()
		c.cache[sceneID] = cacheEntry{scene: scene, expires: time.Now().Add(c.cacheTTL)}
		c.mu.Unlock()
	}

	return scene, nil
}

// Invalidate drops one scene from the cache
func (c *Client) Invalidate(sceneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, sceneID)
}

func (c *Client) fetch(ctx context.Context, baseURL, sceneID string) (*Scene, error) {
	endpoint := fmt.Sprintf("%s/api/scenes/%s", baseURL, url.PathEscape(sceneID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // response body close on read path

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, ErrSceneNotFound
	default:
		return nil, fmt.Errorf("metadata service returned status %d", resp.StatusCode)
	}

	var scene Scene
	if err := json.NewDecoder(resp.Body).Decode(&scene); err != nil {
		return nil, fmt.Errorf("failed to decode scene record: %w", err)
	}
	if scene.ID == "" {
		scene.ID = sceneID
	}

	c.log.Debug().
		Str("scene_id", sceneID).
		Float64("duration_sec", scene.DurationSec).
		Int("source_height", scene.SourceHeight).
		Msg("Resolved scene from metadata service")

	return &scene, nil
}
