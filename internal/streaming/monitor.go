package streaming

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Eyevinn/hls-m3u8/m3u8"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	monitorPollInterval = 500 * time.Millisecond
	monitorScanDebounce = 200 * time.Millisecond
)

// runnerSegmentRe matches the transcoder's 0-based output names
var runnerSegmentRe = regexp.MustCompile(`^segment_(\d+)\.ts$`)

// Monitor watches one runner's work directory, detects finalized
// segments, renames them to timeline-absolute numbers in the session
// directory, and updates the segment index.
//
// A file counts as finalized when the transcoder has moved on: either the
// next-numbered file exists, or the transcoder's own playlist lists it.
// A bare create/write event is never enough, the muxer may still be
// appending.
type Monitor struct {
	workDir    string
	sessionDir string
	startSeg   int
	index      *SegmentIndex
	log        zerolog.Logger

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	doneChan chan struct{}

	mu        sync.Mutex
	finalized map[int]bool // runner-numbered segments already renamed
	stopped   bool
}

// NewMonitor creates a monitor translating the runner's 0-based outputs in
// workDir into timeline numbering (offset startSeg) in sessionDir.
func NewMonitor(workDir, sessionDir string, startSeg int, index *SegmentIndex, log zerolog.Logger) (*Monitor, error) {
	if workDir == "" || sessionDir == "" {
		return nil, fmt.Errorf("monitor directories cannot be empty")
	}
	if index == nil {
		return nil, fmt.Errorf("segment index cannot be nil")
	}

	return &Monitor{
		workDir:    workDir,
		sessionDir: sessionDir,
		startSeg:   startSeg,
		index:      index,
		log:        log,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		finalized:  make(map[int]bool),
	}, nil
}

// Start begins watching. Falls back to polling when fsnotify is
// unavailable on the filesystem.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return fmt.Errorf("monitor has been stopped")
	}

	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := watcher.Add(m.workDir); addErr != nil {
			m.log.Warn().Err(addErr).Str("work_dir", m.workDir).
				Msg("Failed to watch work directory, falling back to polling")
			_ = watcher.Close()
			watcher = nil
		}
	} else {
		m.log.Warn().Err(err).Msg("fsnotify unavailable, falling back to polling")
		watcher = nil
	}
	m.watcher = watcher

	go m.run()

	m.log.Debug().
		Str("work_dir", m.workDir).
		Int("start_seg", m.startSeg).
		Bool("using_fsnotify", watcher != nil).
		Msg("Segment monitor started")

	return nil
}

// Stop halts watching. Already-finalized segments stay in place.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopChan)
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	<-m.doneChan
}

// FlushRemaining finalizes every runner output still in the work
// directory. Called by the supervisor after a clean exit, when no
// next-numbered file will ever appear for the final segment.
func (m *Monitor) FlushRemaining() {
	for _, k := range m.scanWorkDir() {
		m.finalize(k)
	}
}

// run is the monitor loop: events (or polling) trigger a rescan, a short
// debounce coalesces the transcoder's bursts of writes.
func (m *Monitor) run() {
	defer close(m.doneChan)

	ticker := time.NewTicker(monitorPollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if m.watcher != nil {
		events = m.watcher.Events
		errs = m.watcher.Errors
	}

	pending := false
	debounce := time.NewTimer(monitorScanDebounce)
	debounce.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				if !pending {
					pending = true
					debounce.Reset(monitorScanDebounce)
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.log.Warn().Err(err).Msg("fsnotify error, continuing")
		case <-debounce.C:
			pending = false
			m.scanAndFinalize()
		case <-ticker.C:
			// Polling fallback and safety net under fsnotify
			m.scanAndFinalize()
		}
	}
}

// scanAndFinalize applies the finalization policy to the current contents
// of the work directory.
func (m *Monitor) scanAndFinalize() {
	emitted := m.scanWorkDir()
	if len(emitted) == 0 {
		return
	}

	maxEmitted := emitted[len(emitted)-1]

	// The newest file is still being written; mark its timeline segment
	// as in-flight so waiters and the status endpoint see progress. A
	// restarted runner re-entering a preserved region must not downgrade
	// a segment that is already completed.
	newest := m.startSeg + maxEmitted
	if meta, ok := m.index.Get(newest); !ok || meta.State != SegmentCompleted {
		m.index.Mark(newest, SegmentTranscoding, nil)
	}

	listed := m.playlistListed()

	for _, k := range emitted {
		if k < maxEmitted || listed[k] {
			m.finalize(k)
		}
	}
}

// scanWorkDir returns the runner-numbered segments present in the work
// directory in ascending numeric order. Directory order is lexicographic,
// which misorders segment_1000 before segment_999.
func (m *Monitor) scanWorkDir() []int {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn().Err(err).Str("work_dir", m.workDir).Msg("Failed to read work directory")
		}
		return nil
	}

	var nums []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := runnerSegmentRe.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		k, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		m.mu.Lock()
		done := m.finalized[k]
		m.mu.Unlock()
		if !done {
			nums = append(nums, k)
		}
	}
	sort.Ints(nums)
	return nums
}

// playlistListed parses the transcoder's own playlist and returns the set
// of runner-numbered segments it references.
func (m *Monitor) playlistListed() map[int]bool {
	listed := make(map[int]bool)

	f, err := os.Open(RunnerPlaylistPath(m.workDir))
	if err != nil {
		return listed
	}
	defer f.Close() // nolint:errcheck // read-only handle

	playlist, listType, err := m3u8.DecodeFrom(f, false)
	if err != nil || listType != m3u8.MEDIA {
		return listed
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return listed
	}

	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		matches := runnerSegmentRe.FindStringSubmatch(filepath.Base(seg.URI))
		if matches == nil {
			continue
		}
		if k, err := strconv.Atoi(matches[1]); err == nil {
			listed[k] = true
		}
	}
	return listed
}

// finalize renames runner segment k to its timeline-absolute number and
// marks it completed. Rename is a same-filesystem move, never a copy. A
// timeline segment that already exists (preserved across a restart) is
// never overwritten; the redundant work file is dropped instead.
func (m *Monitor) finalize(k int) {
	m.mu.Lock()
	if m.finalized[k] {
		m.mu.Unlock()
		return
	}
	m.finalized[k] = true
	m.mu.Unlock()

	n := m.startSeg + k
	src := filepath.Join(m.workDir, fmt.Sprintf("segment_%03d.ts", k))
	dst := filepath.Join(m.sessionDir, SegmentFilename(n))

	if _, err := os.Stat(dst); err == nil {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			m.log.Warn().Err(err).Int("segment", n).Msg("Failed to drop duplicate work segment")
		}
		m.index.Mark(n, SegmentCompleted, nil)
		return
	}

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			// Raced with teardown; nothing to record
			return
		}
		m.log.Error().Err(err).Int("segment", n).Msg("Failed to finalize segment")
		m.index.Mark(n, SegmentFailed, func(meta *SegmentMeta) {
			meta.LastError = err.Error()
		})
		return
	}

	m.index.Mark(n, SegmentCompleted, nil)

	m.log.Debug().
		Int("segment", n).
		Int("runner_segment", k).
		Msg("Segment finalized")
}
