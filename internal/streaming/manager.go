package streaming

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cwaldron/scenecast/internal/logger"
	"github.com/cwaldron/scenecast/internal/metadata"
)

// ErrSceneNotStreamable indicates the scene record exists but carries no
// usable source file
var ErrSceneNotStreamable = errors.New("scene has no streamable source")

// SceneResolver resolves scene records for session creation
type SceneResolver interface {
	ResolveScene(ctx context.Context, sceneID string) (*metadata.Scene, error)
}

// PathTranslator rewrites metadata-service paths into local ones
type PathTranslator interface {
	Translate(externalPath string) (string, error)
}

// ManagerConfig carries the registry-wide session policy
type ManagerConfig struct {
	ConfigDir       string        // sessions live under ConfigDir/hls/<sessionID>
	SegmentDuration int           // seconds per segment
	IdleTimeout     time.Duration // destroy sessions idle longer than this
	SweepInterval   time.Duration // idle sweep cadence
	ReuseGrace      time.Duration // playhead grace ahead of the produced end
	MaxSessions     int           // 0 means unlimited
	Supervisor      SupervisorConfig
}

type entry struct {
	session *Session
	sup     *Supervisor
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Manager is the process-wide session registry. It serializes session
// creation per key so concurrent requests for the same (scene, quality)
// share one transcoder, decides reuse versus restart on seeks, and
// destroys idle sessions.
type Manager struct {
	cfg      ManagerConfig
	resolver SceneResolver
	paths    PathTranslator
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[SessionKey]*entry
	locks    map[SessionKey]*keyLock
	stopped  bool

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewManager creates a session manager and starts its idle sweeper
func NewManager(cfg ManagerConfig, resolver SceneResolver, paths PathTranslator, log zerolog.Logger) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	if cfg.ReuseGrace <= 0 {
		cfg.ReuseGrace = 10 * time.Second
	}

	m := &Manager{
		cfg:      cfg,
		resolver: resolver,
		paths:    paths,
		log:      log,
		sessions: make(map[SessionKey]*entry),
		locks:    make(map[SessionKey]*keyLock),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	go m.runSweeper()

	return m
}

// GetOrCreate returns the live session for key, creating one starting at
// startSec if none exists. On an existing session the startSec decides
// reuse versus restart: positions inside the producible window reuse the
// running transcoder, positions outside it restart the transcoder at the
// new position. Blocks until the session has produced its first segment.
func (m *Manager) GetOrCreate(ctx context.Context, key SessionKey, startSec float64) (*Session, error) {
	if key.Quality == QualityDirect {
		return nil, fmt.Errorf("%w: direct playback needs no session", ErrQualityNotAllowed)
	}

	lock := m.acquireKeyLock(key)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.releaseKeyLock(key)
	}()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	e := m.sessions[key]
	m.mu.Unlock()

	if e != nil {
		sess, err := m.reuseOrRestart(key, e, startSec)
		if err == nil || !errors.Is(err, errEntryStale) {
			return sess, err
		}
		// Stale entry dropped; fall through and create fresh
	}

	return m.create(ctx, key, startSec)
}

// errEntryStale signals reuseOrRestart dropped a dead registry entry
var errEntryStale = errors.New("session entry stale")

func (m *Manager) reuseOrRestart(key SessionKey, e *entry, startSec float64) (*Session, error) {
	sess := e.session

	switch sess.State() {
	case StateFailed, StateStopping, StateStopped:
		m.removeEntry(key, e)
		return nil, errEntryStale
	case StateStarting, StateRestarting:
		// A transition is already in flight; callers wait on the index
		sess.Touch()
		return sess, nil
	}

	n := SegmentForTime(startSec, sess.SegmentDur)
	if m.withinWindow(sess, n) {
		sess.Touch()
		return sess, nil
	}

	atSec := float64(n * sess.SegmentDur)
	m.log.Info().
		Str("session_key", key.String()).
		Float64("requested_sec", startSec).
		Int("segment", n).
		Msg("Seek outside producible window, restarting session")

	if err := e.sup.Restart(atSec); err != nil {
		return nil, err
	}
	sess.Touch()
	return sess, nil
}

// withinWindow reports whether segment n can be served by the running
// transcoder without a restart: already produced, or close enough ahead of
// the produced end that waiting beats restarting.
func (m *Manager) withinWindow(sess *Session, n int) bool {
	startSeg := sess.StartSeg()
	if n < startSeg {
		return false
	}
	graceSec := int(m.cfg.ReuseGrace.Seconds())
	graceSegs := (graceSec + sess.SegmentDur - 1) / sess.SegmentDur
	return n <= sess.Index().ProducedEnd()+graceSegs
}

func (m *Manager) create(ctx context.Context, key SessionKey, startSec float64) (*Session, error) {
	scene, err := m.resolver.ResolveScene(ctx, key.SceneID)
	if err != nil {
		return nil, err
	}
	if !scene.IsStreamable() {
		return nil, fmt.Errorf("%w: %s", ErrSceneNotStreamable, key.SceneID)
	}
	if !QualityAllowed(key.Quality, scene.SourceHeight) {
		return nil, fmt.Errorf("%w: %s exceeds source height %d", ErrQualityNotAllowed, key.Quality, scene.SourceHeight)
	}

	preset, err := PresetFor(key.Quality)
	if err != nil {
		return nil, err
	}

	inputPath, err := m.paths.Translate(scene.Path)
	if err != nil {
		return nil, err
	}

	media, err := BuildMediaPlaylist(scene.DurationSec, m.cfg.SegmentDuration)
	if err != nil {
		return nil, err
	}
	master := BuildMasterPlaylist(preset)

	m.evictIfFull(key)

	id := uuid.New()
	outputDir := filepath.Join(m.cfg.ConfigDir, "hls", id.String())
	sess := NewSession(id, key, inputPath, outputDir, scene.DurationSec, m.cfg.SegmentDuration, startSec, master, media)

	log := logger.ForSession(id.String(), key.SceneID, key.Quality)

	sup := NewSupervisor(sess, preset, m.cfg.Supervisor, log, m.onSessionFailure)
	e := &entry{session: sess, sup: sup}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	m.sessions[key] = e
	m.mu.Unlock()

	log.Info().
		Float64("start_sec", startSec).
		Float64("duration_sec", scene.DurationSec).
		Int("total_segments", sess.Total).
		Msg("Creating transcoding session")

	if err := sup.Start(); err != nil {
		m.removeEntry(key, e)
		m.removeSessionDir(sess)
		return nil, err
	}

	return sess, nil
}

// Lookup returns the live session for key without creating one
func (m *Manager) Lookup(key SessionKey) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// LookupError returns the classified failure for key's supervisor, if the
// entry still exists and has one.
func (m *Manager) LookupError(key SessionKey) *TranscodeError {
	m.mu.Lock()
	e, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return e.sup.LastError()
}

// Sessions returns the live sessions, unordered
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.session)
	}
	return out
}

// Destroy tears down the session for key and removes its files. No-op if
// the key has no session.
func (m *Manager) Destroy(key SessionKey) {
	lock := m.acquireKeyLock(key)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.releaseKeyLock(key)
	}()

	m.mu.Lock()
	e, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	e.sup.Stop()
	m.removeSessionDir(e.session)

	m.log.Info().Str("session_key", key.String()).Msg("Session destroyed")
}

// Stop destroys every session and halts the sweeper. The manager cannot
// be reused afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	keys := make([]SessionKey, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	close(m.stopChan)
	<-m.doneChan

	for _, key := range keys {
		m.Destroy(key)
	}

	m.log.Info().Int("sessions", len(keys)).Msg("Session manager stopped")
}

// onSessionFailure drops a failed session's registry entry so the next
// request for its key retries with a fresh transcoder.
func (m *Manager) onSessionFailure(key SessionKey) {
	m.mu.Lock()
	e, ok := m.sessions[key]
	if ok && e.session.State() == StateFailed {
		delete(m.sessions, key)
	} else {
		ok = false
	}
	m.mu.Unlock()

	if ok {
		// Full teardown releases the monitor and runner the failure left
		// behind; Stop is a no-op on whatever the failure path already
		// closed.
		e.sup.Stop()
		m.removeSessionDir(e.session)
		m.log.Warn().Str("session_key", key.String()).Msg("Failed session removed from registry")
	}
}

// evictIfFull destroys the most idle session when the registry is at
// capacity. Entries are dropped from the map first so in-flight requests
// observe session-gone rather than racing teardown.
func (m *Manager) evictIfFull(incoming SessionKey) {
	if m.cfg.MaxSessions <= 0 {
		return
	}

	m.mu.Lock()
	if len(m.sessions) < m.cfg.MaxSessions {
		m.mu.Unlock()
		return
	}

	var victimKey SessionKey
	var victim *entry
	var maxIdle time.Duration = -1
	for key, e := range m.sessions {
		if key == incoming {
			continue
		}
		if idle := e.session.IdleDuration(); idle > maxIdle {
			maxIdle = idle
			victimKey = key
			victim = e
		}
	}
	if victim != nil {
		delete(m.sessions, victimKey)
	}
	m.mu.Unlock()

	if victim == nil {
		return
	}

	m.log.Info().
		Str("session_key", victimKey.String()).
		Dur("idle", maxIdle).
		Msg("Evicting most idle session, registry at capacity")

	victim.sup.Stop()
	m.removeSessionDir(victim.session)
}

// runSweeper destroys sessions idle past the idle timeout
func (m *Manager) runSweeper() {
	defer close(m.doneChan)

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		var idleKeys []SessionKey
		for key, e := range m.sessions {
			if e.session.IdleDuration() > m.cfg.IdleTimeout {
				idleKeys = append(idleKeys, key)
			}
		}
		m.mu.Unlock()

		for _, key := range idleKeys {
			m.log.Info().Str("session_key", key.String()).Msg("Destroying idle session")
			m.Destroy(key)
		}
	}
}

func (m *Manager) removeEntry(key SessionKey, e *entry) {
	m.mu.Lock()
	if cur, ok := m.sessions[key]; ok && cur == e {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
}

func (m *Manager) removeSessionDir(sess *Session) {
	if err := os.RemoveAll(sess.OutputDir); err != nil {
		m.log.Warn().Err(err).Str("dir", sess.OutputDir).Msg("Failed to remove session directory")
	}
}

// acquireKeyLock returns the per-key mutex, creating it on first use
func (m *Manager) acquireKeyLock(key SessionKey) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &keyLock{}
		m.locks[key] = lock
	}
	lock.refs++
	return lock
}

// releaseKeyLock drops a reference, freeing the mutex when unused
func (m *Manager) releaseKeyLock(key SessionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(m.locks, key)
	}
}
