// Package metadata resolves scene records from the upstream media
// metadata service and caches them for the streaming layer.
package metadata

import (
	"context"
	"errors"
)

// Common errors
var (
	// ErrSceneNotFound indicates the upstream service has no record for
	// the requested scene ID
	ErrSceneNotFound = errors.New("scene not found")

	// ErrNotInitialized indicates the metadata source has not been
	// configured yet and lookups cannot be served
	ErrNotInitialized = errors.New("metadata source not initialized")
)

// Variant is a pre-packaged upstream rendition of a scene, served by the
// metadata service's own CDN rather than the local transcoder.
type Variant struct {
	Label       string `json:"label"`
	ManifestURL string `json:"manifest_url"`
}

// Scene is the resolved metadata record for one media asset
type Scene struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Path         string    `json:"path"` // file path as known to the metadata service
	DurationSec  float64   `json:"duration_sec"`
	SourceWidth  int       `json:"source_width"`
	SourceHeight int       `json:"source_height"`
	SourceCodec  string    `json:"source_codec"`
	Variants     []Variant `json:"variants,omitempty"`
}

// IsStreamable reports whether the record carries enough information to
// start a transcoding session.
func (s *Scene) IsStreamable() bool {
	return s != nil && s.Path != "" && s.DurationSec > 0
}

// Variant returns the upstream rendition with the given label
func (s *Scene) Variant(label string) (Variant, bool) {
	for _, v := range s.Variants {
		if v.Label == label {
			return v, true
		}
	}
	return Variant{}, false
}

// Source resolves scene records. Implementations must be safe for
// concurrent use.
type Source interface {
	ResolveScene(ctx context.Context, sceneID string) (*Scene, error)
}
