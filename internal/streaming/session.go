package streaming

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a running or startable transcoding context for one
// (sceneID, quality) pair. It is kept in memory only; the registry drops
// it on teardown and nothing is persisted.
//
// Immutable after creation: identity, input, output directory, playlists
// and segment geometry. Mutable under the session mutex: state, start
// offset and last activity.
type Session struct {
	Key        SessionKey
	ID         uuid.UUID
	InputPath  string
	OutputDir  string // exclusively owned, removed on destroy
	Duration   float64
	SegmentDur int
	Total      int // expected segment count for the whole asset

	// Playlists are built eagerly at creation and never change, which is
	// what makes playlist responses byte-identical across requests.
	MasterPlaylist string
	MediaPlaylist  string

	index *SegmentIndex

	mu           sync.RWMutex
	state        SessionState
	startSec     float64
	startSeg     int
	lastActivity time.Time
	workSeq      int // bumped per runner so each gets a fresh work subdir
}

// NewSession creates a session in the starting state
func NewSession(id uuid.UUID, key SessionKey, inputPath, outputDir string, duration float64, segmentDur int, startSec float64, master, media string) *Session {
	total := SegmentCount(duration, segmentDur)
	startSeg := SegmentForTime(startSec, segmentDur)

	return &Session{
		Key:            key,
		ID:             id,
		InputPath:      inputPath,
		OutputDir:      outputDir,
		Duration:       duration,
		SegmentDur:     segmentDur,
		Total:          total,
		MasterPlaylist: master,
		MediaPlaylist:  media,
		index:          NewSegmentIndex(startSeg, total),
		state:          StateStarting,
		startSec:       startSec,
		startSeg:       startSeg,
		lastActivity:   time.Now(),
	}
}

// Index returns the session's segment index
func (s *Session) Index() *SegmentIndex {
	return s.index
}

// State returns the current session state (thread-safe)
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState transitions the session state. Invalid transitions are
// rejected so callers can't corrupt the lifecycle.
func (s *Session) SetState(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransitionTo(next) {
		return ErrInvalidStateTransition
	}
	s.state = next
	return nil
}

// StartSec returns the current runner's start offset (thread-safe)
func (s *Session) StartSec() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startSec
}

// StartSeg returns the current runner's first timeline segment (thread-safe)
func (s *Session) StartSeg() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startSeg
}

// SetStart moves the producing region for a new runner lifetime
func (s *Session) SetStart(startSec float64) {
	s.mu.Lock()
	s.startSec = startSec
	s.startSeg = SegmentForTime(startSec, s.SegmentDur)
	startSeg := s.startSeg
	s.mu.Unlock()

	s.index.SetStartSeg(startSeg)
}

// Touch refreshes the last-activity timestamp (thread-safe)
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// IdleDuration returns the time since the last activity (thread-safe)
func (s *Session) IdleDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivity)
}

// NextWorkDirSeq returns a fresh work-directory sequence number. Each
// runner writes into its own subdirectory so a restarted runner's 0-based
// outputs can never clobber segments already renamed into the session
// directory.
func (s *Session) NextWorkDirSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workSeq++
	return s.workSeq
}
