// Package streaming implements the on-demand HLS transcoding core: one
// supervised transcoder process per (scene, quality) session, a segment
// index with wait-for-segment semantics, and a process-wide session
// registry.
package streaming

import (
	"errors"
	"fmt"
	"math"
)

// SessionState represents the current state of a transcoding session
type SessionState string

// Session state constants
const (
	StateStarting   SessionState = "starting"   // transcoder launching, first segment pending
	StateActive     SessionState = "active"     // transcoder running, segments landing
	StateRestarting SessionState = "restarting" // seek outside the producible window in progress
	StateStopping   SessionState = "stopping"   // graceful teardown in progress
	StateStopped    SessionState = "stopped"    // torn down
	StateFailed     SessionState = "failed"     // transcoder failed, session unusable
)

// Common errors
var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// String returns the string representation of the session state
func (s SessionState) String() string {
	return string(s)
}

// IsValid checks if the session state is a known valid value
func (s SessionState) IsValid() bool {
	switch s {
	case StateStarting, StateActive, StateRestarting, StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a transition from current state to newState is valid
func (s SessionState) CanTransitionTo(newState SessionState) bool {
	switch s {
	case StateStarting:
		return newState == StateActive || newState == StateFailed || newState == StateStopping
	case StateActive:
		return newState == StateRestarting || newState == StateStopping || newState == StateFailed
	case StateRestarting:
		return newState == StateActive || newState == StateFailed || newState == StateStopping
	case StateStopping:
		return newState == StateStopped
	case StateStopped, StateFailed:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible
func (s SessionState) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// Quality label constants. The set is fixed; "direct" bypasses the
// transcoder entirely.
const (
	QualityDirect = "direct"
	Quality2160p  = "2160p"
	Quality1080p  = "1080p"
	Quality720p   = "720p"
	Quality480p   = "480p"
	Quality360p   = "360p"
)

// QualityPreset describes the encoder settings for one quality level
type QualityPreset struct {
	Label            string
	Width            int
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

// presets is the fixed quality table, ordered highest first
var presets = []QualityPreset{
	{Label: Quality2160p, Width: 3840, Height: 2160, VideoBitrateKbps: 16000, AudioBitrateKbps: 192},
	{Label: Quality1080p, Width: 1920, Height: 1080, VideoBitrateKbps: 5000, AudioBitrateKbps: 192},
	{Label: Quality720p, Width: 1280, Height: 720, VideoBitrateKbps: 3000, AudioBitrateKbps: 160},
	{Label: Quality480p, Width: 854, Height: 480, VideoBitrateKbps: 1500, AudioBitrateKbps: 128},
	{Label: Quality360p, Width: 640, Height: 360, VideoBitrateKbps: 800, AudioBitrateKbps: 128},
}

// ErrUnknownQuality indicates a quality label outside the fixed set
var ErrUnknownQuality = errors.New("unknown quality level")

// PresetFor returns the preset for a quality label. QualityDirect has no
// preset because no transcoder runs for it.
func PresetFor(label string) (QualityPreset, error) {
	for _, p := range presets {
		if p.Label == label {
			return p, nil
		}
	}
	return QualityPreset{}, fmt.Errorf("%w: %s", ErrUnknownQuality, label)
}

// IsValidQuality reports whether the label is in the allowed set
func IsValidQuality(label string) bool {
	if label == QualityDirect {
		return true
	}
	_, err := PresetFor(label)
	return err == nil
}

// QualityAllowed reports whether a quality may be requested for a source
// with the given height. Direct is always allowed; transcoded presets must
// not upscale.
func QualityAllowed(label string, sourceHeight int) bool {
	if label == QualityDirect {
		return true
	}
	p, err := PresetFor(label)
	if err != nil {
		return false
	}
	return p.Height <= sourceHeight
}

// Resolution returns the "WIDTHxHEIGHT" string for the preset
func (p QualityPreset) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// BandwidthBps returns the declared playlist bandwidth in bits per second
func (p QualityPreset) BandwidthBps() int {
	return (p.VideoBitrateKbps + p.AudioBitrateKbps) * 1000
}

// SessionKey uniquely identifies a session in the registry
type SessionKey struct {
	SceneID string
	Quality string
}

// String renders the key in the "sceneID:quality" form used by the admin
// endpoints and logs.
func (k SessionKey) String() string {
	return k.SceneID + ":" + k.Quality
}

// SegmentCount returns the number of segments covering durationSec at
// segmentDur seconds each (the final segment may be short).
func SegmentCount(durationSec float64, segmentDur int) int {
	if durationSec <= 0 || segmentDur <= 0 {
		return 0
	}
	return int(math.Ceil(durationSec / float64(segmentDur)))
}

// SegmentForTime returns the timeline-absolute segment number covering the
// given offset.
func SegmentForTime(offsetSec float64, segmentDur int) int {
	if offsetSec <= 0 || segmentDur <= 0 {
		return 0
	}
	return int(math.Floor(offsetSec / float64(segmentDur)))
}

// SegmentFilename returns the canonical timeline-numbered segment filename
func SegmentFilename(n int) string {
	return fmt.Sprintf("segment_%03d.ts", n)
}
