package streaming

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, startSeg int) (*Monitor, *SegmentIndex, string, string) {
	t.Helper()

	workDir := filepath.Join(t.TempDir(), "work-1")
	sessionDir := t.TempDir()
	require.NoError(t, os.MkdirAll(workDir, 0o755))

	index := NewSegmentIndex(startSeg, 1000)
	mon, err := NewMonitor(workDir, sessionDir, startSeg, index, zerolog.Nop())
	require.NoError(t, err)
	return mon, index, workDir, sessionDir
}

func writeWorkSegment(t *testing.T, workDir string, k int, content string) {
	t.Helper()
	name := filepath.Join(workDir, fmt.Sprintf("segment_%03d.ts", k))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

func TestMonitor_NewestSegmentNotFinalized(t *testing.T) {
	mon, index, workDir, sessionDir := newTestMonitor(t, 0)

	writeWorkSegment(t, workDir, 0, "a")
	writeWorkSegment(t, workDir, 1, "b")

	mon.scanAndFinalize()

	// Segment 0 has a successor so it is final; segment 1 may still be
	// appended to.
	assert.FileExists(t, filepath.Join(sessionDir, "segment_000.ts"))
	assert.NoFileExists(t, filepath.Join(sessionDir, "segment_001.ts"))

	meta, _ := index.Get(0)
	assert.Equal(t, SegmentCompleted, meta.State)
	meta, _ = index.Get(1)
	assert.Equal(t, SegmentTranscoding, meta.State)
}

func TestMonitor_TimelineOffsetApplied(t *testing.T) {
	mon, index, workDir, sessionDir := newTestMonitor(t, 150)

	writeWorkSegment(t, workDir, 0, "a")
	writeWorkSegment(t, workDir, 1, "b")

	mon.scanAndFinalize()

	// Runner output 0 lands as timeline segment 150
	assert.FileExists(t, filepath.Join(sessionDir, "segment_150.ts"))

	meta, _ := index.Get(150)
	assert.Equal(t, SegmentCompleted, meta.State)
	meta, _ = index.Get(151)
	assert.Equal(t, SegmentTranscoding, meta.State)
}

func TestMonitor_PlaylistListingFinalizesTail(t *testing.T) {
	mon, index, workDir, sessionDir := newTestMonitor(t, 0)

	writeWorkSegment(t, workDir, 0, "a")
	playlist := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:2\n" +
		"#EXTINF:2.000,\nsegment_000.ts\n#EXT-X-ENDLIST\n"
	require.NoError(t, os.WriteFile(RunnerPlaylistPath(workDir), []byte(playlist), 0o644))

	mon.scanAndFinalize()

	// No successor exists, but the runner's own playlist lists it
	assert.FileExists(t, filepath.Join(sessionDir, "segment_000.ts"))
	meta, _ := index.Get(0)
	assert.Equal(t, SegmentCompleted, meta.State)
}

func TestMonitor_FlushRemaining(t *testing.T) {
	mon, index, workDir, sessionDir := newTestMonitor(t, 0)

	writeWorkSegment(t, workDir, 0, "a")
	writeWorkSegment(t, workDir, 1, "b")

	mon.FlushRemaining()

	assert.FileExists(t, filepath.Join(sessionDir, "segment_000.ts"))
	assert.FileExists(t, filepath.Join(sessionDir, "segment_001.ts"))
	meta, _ := index.Get(1)
	assert.Equal(t, SegmentCompleted, meta.State)
}

func TestMonitor_NeverOverwritesTimelineSegment(t *testing.T) {
	mon, index, workDir, sessionDir := newTestMonitor(t, 0)

	// Preserved from a previous runner lifetime
	existing := filepath.Join(sessionDir, "segment_000.ts")
	require.NoError(t, os.WriteFile(existing, []byte("preserved"), 0o644))

	writeWorkSegment(t, workDir, 0, "redundant")
	mon.FlushRemaining()

	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "preserved", string(content))

	// Redundant work file is dropped, state still completed
	assert.NoFileExists(t, filepath.Join(workDir, "segment_000.ts"))
	meta, _ := index.Get(0)
	assert.Equal(t, SegmentCompleted, meta.State)
}

func TestMonitor_FinalizeIdempotent(t *testing.T) {
	mon, _, workDir, sessionDir := newTestMonitor(t, 0)

	writeWorkSegment(t, workDir, 0, "a")
	mon.finalize(0)
	mon.finalize(0)

	assert.FileExists(t, filepath.Join(sessionDir, "segment_000.ts"))
}

// A restarted runner re-entering a region that still holds completed
// segments must not flip them back to transcoding while its newest output
// is being written.
func TestMonitor_PreservedSegmentNotDowngraded(t *testing.T) {
	mon, index, workDir, _ := newTestMonitor(t, 150)

	index.Mark(150, SegmentCompleted, nil)
	writeWorkSegment(t, workDir, 0, "partial")

	mon.scanAndFinalize()

	meta, _ := index.Get(150)
	assert.Equal(t, SegmentCompleted, meta.State)
}

// ReadDir yields lexicographic order, which puts segment_1000 before
// segment_999; the scan must order numerically or the newest-file rule
// finalizes the wrong segment.
func TestMonitor_ScanOrdersNumerically(t *testing.T) {
	mon, index, workDir, sessionDir := newTestMonitor(t, 0)

	for _, k := range []int{2, 999, 1000, 1001} {
		writeWorkSegment(t, workDir, k, "a")
	}

	assert.Equal(t, []int{2, 999, 1000, 1001}, mon.scanWorkDir())

	mon.scanAndFinalize()

	// 1001 is the true newest; everything below it is final
	assert.FileExists(t, filepath.Join(sessionDir, "segment_999.ts"))
	assert.FileExists(t, filepath.Join(sessionDir, "segment_1000.ts"))
	assert.NoFileExists(t, filepath.Join(sessionDir, "segment_1001.ts"))
	meta, _ := index.Get(1001)
	assert.Equal(t, SegmentTranscoding, meta.State)
}

func TestMonitor_IgnoresForeignFiles(t *testing.T) {
	mon, index, workDir, _ := newTestMonitor(t, 0)

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "stream.m3u8.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "notes.txt"), []byte("x"), 0o644))

	mon.scanAndFinalize()

	snap := index.Snapshot()
	assert.Zero(t, snap.Completed)
	assert.Zero(t, snap.Transcoding)
}
