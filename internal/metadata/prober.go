package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const ffprobeTimeout = 30 * time.Second

// Probe errors
var (
	ErrFFprobeNotFound = errors.New("ffprobe not found in PATH")
	ErrInvalidFile     = errors.New("invalid or corrupted video file")
	ErrProbeTimeout    = errors.New("ffprobe execution timed out")
)

// ffprobeResult is the top-level JSON output from ffprobe
type ffprobeResult struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"` // "video" or "audio"
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

// Prober fills in scene fields the metadata service omits by probing the
// local file directly. Used when the upstream record lacks duration or
// source dimensions, without which a session cannot be sized.
type Prober struct {
	binary string
	log    zerolog.Logger
}

// NewProber creates a prober using the given ffprobe binary name or path
func NewProber(binary string, log zerolog.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary, log: log}
}

// Enrich probes localPath and fills any zero fields on scene in place.
// Fields the metadata service already provided are left untouched.
func (p *Prober) Enrich(ctx context.Context, scene *Scene, localPath string) error {
	if scene.DurationSec > 0 && scene.SourceHeight > 0 {
		return nil
	}

	if _, err := exec.LookPath(p.binary); err != nil {
		return ErrFFprobeNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, ffprobeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		localPath,
	)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrProbeTimeout
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidFile, string(exitErr.Stderr))
		}
		return fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ffprobeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var video *ffprobeStream
	for i := range result.Streams {
		if result.Streams[i].CodecType == "video" {
			video = &result.Streams[i]
			break
		}
	}

	if video != nil {
		if scene.SourceCodec == "" {
			scene.SourceCodec = video.CodecName
		}
		if scene.SourceWidth == 0 {
			scene.SourceWidth = video.Width
		}
		if scene.SourceHeight == 0 {
			scene.SourceHeight = video.Height
		}
	}

	if scene.DurationSec == 0 {
		durStr := result.Format.Duration
		if video != nil && video.Duration != "" {
			durStr = video.Duration
		}
		if durStr != "" {
			if dur, err := strconv.ParseFloat(durStr, 64); err == nil {
				scene.DurationSec = dur
			}
		}
	}

	if scene.DurationSec == 0 {
		return fmt.Errorf("%w: could not determine duration", ErrInvalidFile)
	}

	p.log.Debug().
		Str("path", localPath).
		Float64("duration_sec", scene.DurationSec).
		Str("codec", scene.SourceCodec).
		Msg("Enriched scene from ffprobe")

	return nil
}
