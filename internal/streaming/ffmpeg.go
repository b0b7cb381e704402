package streaming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
)

// Transcoder invocation errors
var (
	ErrEmptyInputPath         = errors.New("input path cannot be empty")
	ErrEmptyOutputDir         = errors.New("output directory cannot be empty")
	ErrInvalidSegmentDuration = errors.New("segment duration must be positive")
	ErrNegativeStart          = errors.New("start offset cannot be negative")
)

const (
	// runnerPlaylistName is the transcoder's own playlist inside its work
	// directory. Clients never see it; the monitor reads it to decide
	// which segments are finalized.
	runnerPlaylistName = "stream.m3u8"

	// runnerSegmentPattern is the 0-based naming the transcoder uses
	// regardless of the timeline offset. The monitor renames outputs to
	// timeline-absolute numbers.
	runnerSegmentPattern = "segment_%03d.ts"

	encodingPreset = "veryfast"
	audioChannels  = 2
)

// TranscodeParams contains everything needed to build a transcoder command
type TranscodeParams struct {
	InputPath       string        // local path to the source file
	StartSec        float64       // seek offset before decoding
	Preset          QualityPreset // bitrate and resolution
	SegmentDuration int           // HLS segment duration in seconds
	WorkDir         string        // directory receiving 0-based segments
}

// BuildTranscodeArgs builds the complete ffmpeg argument list for one
// runner lifetime. The command seeks to StartSec, emits a fixed-GOP
// H.264/AAC MPEG-TS stream with all segments kept (VOD list), numbers
// outputs from zero, and reports machine-readable progress on stdout.
func BuildTranscodeArgs(params TranscodeParams) ([]string, error) {
	if err := validateTranscodeParams(params); err != nil {
		return nil, err
	}

	args := make([]string, 0, 40)
	args = append(args, buildInputArgs(params)...)
	args = append(args, buildVideoArgs(params.Preset, params.SegmentDuration)...)
	args = append(args, buildAudioArgs(params.Preset)...)
	args = append(args, buildHLSArgs(params)...)
	args = append(args, filepath.Join(params.WorkDir, runnerPlaylistName))

	return args, nil
}

// validateTranscodeParams validates all transcode parameters
func validateTranscodeParams(params TranscodeParams) error {
	if params.InputPath == "" {
		return ErrEmptyInputPath
	}
	if params.WorkDir == "" {
		return ErrEmptyOutputDir
	}
	if params.SegmentDuration <= 0 {
		return ErrInvalidSegmentDuration
	}
	if params.StartSec < 0 {
		return ErrNegativeStart
	}
	if params.Preset.Label == "" || params.Preset.Label == QualityDirect {
		return fmt.Errorf("%w: %q", ErrUnknownQuality, params.Preset.Label)
	}
	return nil
}

// buildInputArgs builds seek and input arguments. -ss before -i uses
// keyframe seeking, which is what makes far seeks cheap.
func buildInputArgs(params TranscodeParams) []string {
	args := make([]string, 0, 6)

	args = append(args, "-hide_banner", "-loglevel", "warning")

	if params.StartSec > 0 {
		args = append(args, "-ss", strconv.FormatFloat(params.StartSec, 'f', 3, 64))
	}

	args = append(args, "-i", params.InputPath)

	return args
}

// buildVideoArgs builds the H.264 encoding arguments. Keyframes are forced
// on segment boundaries so every emitted segment starts at a GOP boundary
// and is exactly SegmentDuration long.
func buildVideoArgs(preset QualityPreset, segmentDuration int) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", encodingPreset,
		"-b:v", strconv.Itoa(preset.VideoBitrateKbps) + "k",
		"-maxrate", strconv.Itoa(preset.VideoBitrateKbps) + "k",
		"-bufsize", strconv.Itoa(preset.VideoBitrateKbps*2) + "k",
		"-vf", fmt.Sprintf("scale=%d:%d", preset.Width, preset.Height),
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", segmentDuration),
		"-sc_threshold", "0",
	}
}

// buildAudioArgs builds the AAC encoding arguments
func buildAudioArgs(preset QualityPreset) []string {
	return []string{
		"-c:a", "aac",
		"-b:a", strconv.Itoa(preset.AudioBitrateKbps) + "k",
		"-ac", strconv.Itoa(audioChannels),
	}
}

// buildHLSArgs builds the HLS muxer arguments. hls_list_size 0 keeps every
// segment in the runner's playlist (VOD semantics); progress reporting
// goes to stdout where the runner parses it.
func buildHLSArgs(params TranscodeParams) []string {
	return []string{
		"-f", "hls",
		"-hls_time", strconv.Itoa(params.SegmentDuration),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(params.WorkDir, runnerSegmentPattern),
		"-progress", "pipe:1",
		"-nostats",
	}
}

// RunnerPlaylistPath returns the transcoder-maintained playlist path for a
// work directory.
func RunnerPlaylistPath(workDir string) string {
	return filepath.Join(workDir, runnerPlaylistName)
}
