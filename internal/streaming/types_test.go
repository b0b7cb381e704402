package streaming

import (
	"testing"
)

func TestSessionStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionState
		to      SessionState
		allowed bool
	}{
		{"starting to active", StateStarting, StateActive, true},
		{"starting to failed", StateStarting, StateFailed, true},
		{"starting to stopping", StateStarting, StateStopping, true},
		{"starting to restarting", StateStarting, StateRestarting, false},
		{"active to restarting", StateActive, StateRestarting, true},
		{"active to stopping", StateActive, StateStopping, true},
		{"active to failed", StateActive, StateFailed, true},
		{"active to starting", StateActive, StateStarting, false},
		{"restarting to active", StateRestarting, StateActive, true},
		{"restarting to failed", StateRestarting, StateFailed, true},
		{"stopping to stopped", StateStopping, StateStopped, true},
		{"stopping to active", StateStopping, StateActive, false},
		{"stopped is terminal", StateStopped, StateStarting, false},
		{"failed is terminal", StateFailed, StateActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestSessionStateTerminal(t *testing.T) {
	if !StateStopped.IsTerminal() {
		t.Error("stopped should be terminal")
	}
	if !StateFailed.IsTerminal() {
		t.Error("failed should be terminal")
	}
	if StateActive.IsTerminal() {
		t.Error("active should not be terminal")
	}
}

func TestPresetFor(t *testing.T) {
	p, err := PresetFor(Quality720p)
	if err != nil {
		t.Fatalf("PresetFor(720p) failed: %v", err)
	}
	if p.Height != 720 || p.Width != 1280 {
		t.Errorf("unexpected 720p dimensions: %dx%d", p.Width, p.Height)
	}
	if p.VideoBitrateKbps != 3000 {
		t.Errorf("unexpected 720p bitrate: %d", p.VideoBitrateKbps)
	}

	if _, err := PresetFor("4k"); err == nil {
		t.Error("expected error for unknown quality")
	}
	if _, err := PresetFor(QualityDirect); err == nil {
		t.Error("direct has no preset")
	}
}

func TestIsValidQuality(t *testing.T) {
	for _, label := range []string{QualityDirect, Quality2160p, Quality1080p, Quality720p, Quality480p, Quality360p} {
		if !IsValidQuality(label) {
			t.Errorf("%s should be valid", label)
		}
	}
	for _, label := range []string{"", "1080P", "original", "hd"} {
		if IsValidQuality(label) {
			t.Errorf("%s should be invalid", label)
		}
	}
}

func TestQualityAllowed(t *testing.T) {
	tests := []struct {
		quality      string
		sourceHeight int
		allowed      bool
	}{
		{QualityDirect, 480, true},
		{Quality1080p, 1080, true},
		{Quality1080p, 720, false},
		{Quality2160p, 1080, false},
		{Quality360p, 480, true},
		{Quality720p, 2160, true},
		{"bogus", 2160, false},
	}

	for _, tt := range tests {
		if got := QualityAllowed(tt.quality, tt.sourceHeight); got != tt.allowed {
			t.Errorf("QualityAllowed(%s, %d) = %v, want %v", tt.quality, tt.sourceHeight, got, tt.allowed)
		}
	}
}

func TestSegmentCount(t *testing.T) {
	tests := []struct {
		duration float64
		segDur   int
		want     int
	}{
		{60, 2, 30},
		{61, 2, 31},
		{0.5, 2, 1},
		{0, 2, 0},
		{10, 0, 0},
	}

	for _, tt := range tests {
		if got := SegmentCount(tt.duration, tt.segDur); got != tt.want {
			t.Errorf("SegmentCount(%v, %d) = %d, want %d", tt.duration, tt.segDur, got, tt.want)
		}
	}
}

func TestSegmentForTime(t *testing.T) {
	tests := []struct {
		offset float64
		segDur int
		want   int
	}{
		{0, 2, 0},
		{1.9, 2, 0},
		{2, 2, 1},
		{300, 2, 150},
		{-5, 2, 0},
	}

	for _, tt := range tests {
		if got := SegmentForTime(tt.offset, tt.segDur); got != tt.want {
			t.Errorf("SegmentForTime(%v, %d) = %d, want %d", tt.offset, tt.segDur, got, tt.want)
		}
	}
}

func TestSegmentFilename(t *testing.T) {
	if got := SegmentFilename(7); got != "segment_007.ts" {
		t.Errorf("SegmentFilename(7) = %s", got)
	}
	if got := SegmentFilename(1234); got != "segment_1234.ts" {
		t.Errorf("SegmentFilename(1234) = %s", got)
	}
}

func TestSessionKeyString(t *testing.T) {
	key := SessionKey{SceneID: "abc123", Quality: Quality720p}
	if got := key.String(); got != "abc123:720p" {
		t.Errorf("SessionKey.String() = %s", got)
	}
}

func TestBandwidthBps(t *testing.T) {
	p, _ := PresetFor(Quality480p)
	if got := p.BandwidthBps(); got != (1500+128)*1000 {
		t.Errorf("BandwidthBps() = %d", got)
	}
}
