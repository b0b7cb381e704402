package streaming

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwaldron/scenecast/internal/metadata"
)

// writeFakeTranscoder installs an executable shell script that stands in
// for the transcoder binary. The runner launches it with the work
// directory as its cwd, so relative writes land where the monitor looks.
func writeFakeTranscoder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-transcoder")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// emitSegmentsScript writes count segments plus a playlist listing them
// into the current directory, then lingers like a paused encoder so the
// process stays alive until it is told to stop.
func emitSegmentsScript(count int) string {
	return fmt.Sprintf(`n=0
while [ "$n" -lt %d ]; do
  printf 'ts-bytes' > "$(printf 'segment_%%03d.ts' "$n")"
  n=$((n+1))
done
{
  printf '#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:2\n'
  n=0
  while [ "$n" -lt %d ]; do
    printf '#EXTINF:2.000,\nsegment_%%03d.ts\n' "$n"
    n=$((n+1))
  done
  printf '#EXT-X-ENDLIST\n'
} > stream.m3u8
exec sleep 30`, count, count)
}

func newLifecycleManager(t *testing.T, ffmpegPath string, mutate func(*ManagerConfig)) *Manager {
	t.Helper()

	cfg := ManagerConfig{
		ConfigDir:       t.TempDir(),
		SegmentDuration: 2,
		IdleTimeout:     time.Minute,
		SweepInterval:   time.Hour,
		ReuseGrace:      10 * time.Second,
		Supervisor: SupervisorConfig{
			FFmpegPath:     ffmpegPath,
			StartupTimeout: 10 * time.Second,
			SegmentTimeout: time.Minute,
			StopGrace:      200 * time.Millisecond,
			MaxRetries:     3,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m := NewManager(cfg,
		&fakeResolver{scenes: map[string]*metadata.Scene{"scene-1": testScene()}},
		identityTranslator{}, zerolog.Nop())
	t.Cleanup(m.Stop)
	return m
}

// A seek far outside the producible window restarts the transcoder at the
// new position while everything already finalized stays on disk under its
// timeline number.
func TestManager_FarSeekRestartKeepsEarlierSegments(t *testing.T) {
	mgr := newLifecycleManager(t, writeFakeTranscoder(t, emitSegmentsScript(3)), nil)
	key := SessionKey{SceneID: "scene-1", Quality: Quality720p}

	sess, err := mgr.GetOrCreate(context.Background(), key, 0)
	require.NoError(t, err)
	require.Equal(t, StateActive, sess.State())

	// Let all three outputs finalize before seeking away
	require.Eventually(t, func() bool {
		return sess.Index().ProducedEnd() >= 3
	}, 5*time.Second, 50*time.Millisecond)

	again, err := mgr.GetOrCreate(context.Background(), key, 300)
	require.NoError(t, err)
	assert.Same(t, sess, again, "a seek must not replace the session")
	assert.Equal(t, 150, sess.StartSeg())
	assert.Equal(t, StateActive, sess.State())

	// The old region survives alongside the new one
	assert.FileExists(t, filepath.Join(sess.OutputDir, SegmentFilename(0)))
	assert.FileExists(t, filepath.Join(sess.OutputDir, SegmentFilename(150)))

	meta, ok := sess.Index().Get(0)
	require.True(t, ok)
	assert.Equal(t, SegmentCompleted, meta.State)
}

func TestManager_IdleSessionSweptAway(t *testing.T) {
	mgr := newLifecycleManager(t, writeFakeTranscoder(t, emitSegmentsScript(3)), func(cfg *ManagerConfig) {
		cfg.IdleTimeout = 200 * time.Millisecond
		cfg.SweepInterval = 50 * time.Millisecond
	})
	key := SessionKey{SceneID: "scene-1", Quality: Quality720p}

	sess, err := mgr.GetOrCreate(context.Background(), key, 0)
	require.NoError(t, err)

	// No further requests touch the session; the sweeper must tear it
	// down and remove its directory.
	require.Eventually(t, func() bool {
		if len(mgr.Sessions()) != 0 {
			return false
		}
		_, statErr := os.Stat(sess.OutputDir)
		return os.IsNotExist(statErr)
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, StateStopped, sess.State())
}

// Concurrent first requests for the same (scene, quality) must share one
// session backed by exactly one transcoder launch.
func TestManager_ConcurrentRequestsShareOneTranscoder(t *testing.T) {
	launchLog := filepath.Join(t.TempDir(), "launches")
	script := fmt.Sprintf("echo run >> %q\n", launchLog) + emitSegmentsScript(3)
	mgr := newLifecycleManager(t, writeFakeTranscoder(t, script), nil)
	key := SessionKey{SceneID: "scene-1", Quality: Quality720p}

	const callers = 8
	sessions := make([]*Session, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = mgr.GetOrCreate(context.Background(), key, 0)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Same(t, sessions[0], sessions[i], "caller %d", i)
	}

	data, err := os.ReadFile(launchLog)
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(data), "exactly one transcoder launch")
}

// A crashed session must leave the registry so the next request for its
// key starts over with a fresh transcoder.
func TestManager_CrashedSessionRecreatedOnNextRequest(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "crashed-once")
	script := fmt.Sprintf(`if [ ! -f %q ]; then
  : > %q
  echo "Error opening input: boom" 1>&2
  exit 1
fi
`, marker, marker) + emitSegmentsScript(3)
	mgr := newLifecycleManager(t, writeFakeTranscoder(t, script), nil)
	key := SessionKey{SceneID: "scene-1", Quality: Quality720p}

	_, err := mgr.GetOrCreate(context.Background(), key, 0)
	require.Error(t, err)
	var tErr *TranscodeError
	require.ErrorAs(t, err, &tErr)

	_, live := mgr.Lookup(key)
	assert.False(t, live, "crashed session must leave the registry")

	sess, err := mgr.GetOrCreate(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Equal(t, StateActive, sess.State())
}

// A client that disconnects while the first segment is still cooking must
// not take the session down with it; other callers share the startup.
func TestManager_ClientDisconnectDoesNotKillStartup(t *testing.T) {
	mgr := newLifecycleManager(t, writeFakeTranscoder(t, emitSegmentsScript(3)), nil)
	key := SessionKey{SceneID: "scene-1", Quality: Quality720p}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := mgr.GetOrCreate(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, StateActive, sess.State())
}
