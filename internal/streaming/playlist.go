package streaming

import (
	"errors"
	"fmt"
	"strings"
)

// HLS constants
const (
	hlsVersion = 3

	// PlaylistContentType is the MIME type for all playlist responses
	PlaylistContentType = "application/vnd.apple.mpegurl"

	// SegmentContentType is the MIME type for MPEG-TS segment responses
	SegmentContentType = "video/mp2t"
)

// Playlist build errors
var (
	ErrInvalidDuration = errors.New("duration must be positive")
)

// BuildMasterPlaylist renders the master playlist for one requested
// quality. The server emits a single variant; clients that want a
// different quality re-request with another quality parameter.
func BuildMasterPlaylist(preset QualityPreset) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", hlsVersion)
	fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n",
		preset.BandwidthBps(), preset.Resolution())
	b.WriteString("index.m3u8\n")

	return b.String()
}

// BuildMediaPlaylist renders the complete VOD media playlist for an asset
// of durationSec seconds cut into segmentDur-second segments. The playlist
// is declared in full up-front so clients render timeline controls before
// the segments physically exist. Output is deterministic: two calls with
// the same inputs produce byte-identical playlists.
func BuildMediaPlaylist(durationSec float64, segmentDur int) (string, error) {
	if durationSec <= 0 {
		return "", ErrInvalidDuration
	}
	if segmentDur <= 0 {
		return "", ErrInvalidSegmentDuration
	}

	count := SegmentCount(durationSec, segmentDur)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", hlsVersion)
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", segmentDur)
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")

	for n := 0; n < count; n++ {
		dur := float64(segmentDur)
		if n == count-1 {
			// The final segment covers whatever remains
			dur = durationSec - float64(n*segmentDur)
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", dur)
		b.WriteString(SegmentFilename(n))
		b.WriteByte('\n')
	}

	b.WriteString("#EXT-X-ENDLIST\n")

	return b.String(), nil
}
