package streaming

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const watchdogInterval = 5 * time.Second

// SupervisorConfig carries the per-session supervision policy
type SupervisorConfig struct {
	FFmpegPath     string
	StartupTimeout time.Duration // deadline for the first segment
	SegmentTimeout time.Duration // max age of a stuck in-flight segment
	StopGrace      time.Duration // graceful shutdown window
	MaxRetries     int           // seek-driven retries per segment
}

// Supervisor owns one session's runner and monitor. At most one runner is
// alive per session at any time; only the supervisor signals or reaps it.
type Supervisor struct {
	session *Session
	preset  QualityPreset
	cfg     SupervisorConfig
	log     zerolog.Logger

	// onFailure tells the registry to drop the session so the next
	// request retries cleanly. Called at most once.
	onFailure func(key SessionKey)

	mu        sync.Mutex
	runner    *Runner
	monitor   *Monitor
	runnerGen int
	lastErr   *TranscodeError
	stopped   bool

	stopOnce     sync.Once
	watchdogOnce sync.Once
	watchdogStop chan struct{}
}

// NewSupervisor creates a supervisor for the given session
func NewSupervisor(session *Session, preset QualityPreset, cfg SupervisorConfig, log zerolog.Logger, onFailure func(SessionKey)) *Supervisor {
	return &Supervisor{
		session:      session,
		preset:       preset,
		cfg:          cfg,
		log:          log,
		onFailure:    onFailure,
		watchdogStop: make(chan struct{}),
	}
}

// Start launches the first runner and blocks until the first segment
// (N = startSeg) is completed or the startup deadline elapses. On failure
// the session is marked failed and cleaned up.
//
// The startup wait deliberately ignores the requesting client's context:
// other callers queued on the session key share this startup, so one
// client disconnecting must not tear it down.
func (s *Supervisor) Start() error {
	if err := os.MkdirAll(s.session.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	s.mu.Lock()
	err := s.startRunnerLocked()
	s.mu.Unlock()
	if err != nil {
		s.fail(ClassifyRunnerError(err, ""))
		return err
	}

	startSeg := s.session.StartSeg()
	outcome := s.session.Index().WaitFor(context.Background(), startSeg, s.cfg.StartupTimeout)
	switch outcome {
	case WaitCompleted:
		if err := s.session.SetState(StateActive); err != nil {
			return err
		}
		go s.runWatchdog()
		s.log.Info().
			Int("start_seg", startSeg).
			Msg("Session active, first segment produced")
		return nil
	case WaitSessionGone:
		// Runner died during startup; the exit watcher recorded why
		s.mu.Lock()
		lastErr := s.lastErr
		s.mu.Unlock()
		if lastErr != nil {
			return lastErr
		}
		return ErrSessionGone
	default:
		startupErr := NewTranscodeError(ErrorTypeTimeout,
			fmt.Sprintf("first segment not produced within %s", s.cfg.StartupTimeout), nil)
		s.fail(startupErr)
		return startupErr
	}
}

// Restart implements seek handling: stop the current runner gracefully,
// keep already-completed segments in place (they retain their timeline
// numbers in the session directory), start a new runner at atSec, and
// block until its first segment lands.
func (s *Supervisor) Restart(atSec float64) error {
	if err := s.session.SetState(StateRestarting); err != nil {
		return err
	}

	s.mu.Lock()
	s.runnerGen++ // invalidate the old runner's exit watcher
	runner := s.runner
	monitor := s.monitor
	s.mu.Unlock()

	if runner != nil {
		runner.Stop(s.cfg.StopGrace)
	}
	if monitor != nil {
		monitor.Stop()
	}

	s.mu.Lock()
	if s.monitor != nil {
		s.removeWorkDirLocked()
	}
	s.session.SetStart(atSec)
	err := s.startRunnerLocked()
	s.mu.Unlock()
	if err != nil {
		s.fail(ClassifyRunnerError(err, ""))
		return err
	}

	startSeg := s.session.StartSeg()
	outcome := s.session.Index().WaitFor(context.Background(), startSeg, s.cfg.StartupTimeout)
	if outcome != WaitCompleted {
		restartErr := NewTranscodeError(ErrorTypeTimeout,
			fmt.Sprintf("segment %d not produced after restart", startSeg), nil)
		s.fail(restartErr)
		return restartErr
	}

	if err := s.session.SetState(StateActive); err != nil {
		return err
	}

	s.log.Info().
		Float64("at_sec", atSec).
		Int("start_seg", startSeg).
		Msg("Session restarted at new position")

	return nil
}

// Touch refreshes the owning session's last-activity timestamp
func (s *Supervisor) Touch() {
	s.session.Touch()
}

// Stop tears the session down: signal the runner, wait the grace period,
// force-kill, release all waiters. Idempotent; a second call observes the
// same terminal state with no extra teardown.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		// Failed sessions are already terminal; everything else passes
		// through stopping.
		_ = s.session.SetState(StateStopping)

		s.stopWatchdog()

		s.mu.Lock()
		s.stopped = true
		s.runnerGen++
		runner := s.runner
		monitor := s.monitor
		s.mu.Unlock()

		if runner != nil {
			runner.Stop(s.cfg.StopGrace)
		}
		if monitor != nil {
			monitor.Stop()
		}

		s.session.Index().Close()
		_ = s.session.SetState(StateStopped)

		s.log.Debug().Msg("Session supervisor stopped")
	})
}

// LastError returns the classified failure that killed the session, if any
func (s *Supervisor) LastError() *TranscodeError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// startRunnerLocked composes the transcoder arguments and launches a new
// runner plus its monitor. Each runner writes into a fresh work
// subdirectory so its 0-based outputs can never overwrite timeline
// segments already renamed into the session directory.
func (s *Supervisor) startRunnerLocked() error {
	startSec := s.session.StartSec()
	startSeg := s.session.StartSeg()
	workDir := filepath.Join(s.session.OutputDir, fmt.Sprintf("work-%d", s.session.NextWorkDirSeq()))

	args, err := BuildTranscodeArgs(TranscodeParams{
		InputPath:       s.session.InputPath,
		StartSec:        startSec,
		Preset:          s.preset,
		SegmentDuration: s.session.SegmentDur,
		WorkDir:         workDir,
	})
	if err != nil {
		return err
	}

	monitor, err := NewMonitor(workDir, s.session.OutputDir, startSeg, s.session.Index(), s.log)
	if err != nil {
		return err
	}

	runner := NewRunner(s.cfg.FFmpegPath, args, workDir, s.log, func(p Progress) {
		s.log.Debug().
			Dur("timecode", p.Timecode).
			Float64("speed", p.Speed).
			Msg("Transcode progress")
	})

	if err := runner.Start(); err != nil {
		return err
	}
	if err := monitor.Start(); err != nil {
		runner.Stop(s.cfg.StopGrace)
		return err
	}

	s.runner = runner
	s.monitor = monitor
	gen := s.runnerGen

	go s.watchExit(runner, monitor, gen)

	return nil
}

// stopWatchdog halts the per-segment timeout loop. Safe to call from both
// the teardown and failure paths.
func (s *Supervisor) stopWatchdog() {
	s.watchdogOnce.Do(func() {
		close(s.watchdogStop)
	})
}

// watchExit reaps one runner lifetime. A non-zero exit while the session
// is active or starting marks it failed; exits during stopping or
// restarting are expected and ignored.
func (s *Supervisor) watchExit(runner *Runner, monitor *Monitor, gen int) {
	res := runner.Wait()

	s.mu.Lock()
	stale := gen != s.runnerGen || s.stopped
	s.mu.Unlock()
	if stale {
		// Replaced by a restart or torn down; that path owns cleanup
		return
	}

	if res.Code == 0 {
		// Clean exit: the asset tail is done. Flush the final segment
		// (no next-numbered file will ever appear for it).
		monitor.FlushRemaining()
		monitor.Stop()
		s.log.Info().Msg("Transcoder finished asset tail")
		return
	}

	state := s.session.State()
	if state == StateStopping || state == StateRestarting || state == StateStopped {
		s.log.Debug().
			Int("exit_code", res.Code).
			Msg("Transcoder exited during intentional shutdown")
		return
	}

	tErr := ClassifyRunnerError(res.Err, res.StderrTail)
	s.log.Error().
		Err(tErr).
		Int("exit_code", res.Code).
		Str("error_type", tErr.Type.String()).
		Msg("Transcoder crashed unexpectedly")

	monitor.Stop()
	s.fail(tErr)
}

// fail marks the session failed, releases all waiters, and tells the
// registry to drop the entry so the next request retries cleanly.
func (s *Supervisor) fail(tErr *TranscodeError) {
	s.mu.Lock()
	if s.lastErr == nil {
		s.lastErr = tErr
	}
	alreadyStopped := s.stopped
	onFailure := s.onFailure
	s.onFailure = nil
	s.mu.Unlock()

	if alreadyStopped {
		return
	}

	s.stopWatchdog()
	_ = s.session.SetState(StateFailed)
	s.session.Index().Close()

	if onFailure != nil {
		onFailure(s.session.Key)
	}
}

// removeWorkDirLocked drops the previous runner's work directory.
// Finalized segments were already moved out; whatever remains is a
// partial tail the new runner will re-produce.
func (s *Supervisor) removeWorkDirLocked() {
	workDir := s.monitor.workDir
	if err := os.RemoveAll(workDir); err != nil {
		s.log.Warn().Err(err).Str("work_dir", workDir).Msg("Failed to remove stale work directory")
	}
}

// runWatchdog applies the per-segment timeout: a segment stuck in
// waiting or transcoding past SegmentTimeout is either re-requested via a
// seek-driven restart (up to MaxRetries) or marked failed.
func (s *Supervisor) runWatchdog() {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	index := s.session.Index()
	lastEnd := index.ProducedEnd()
	lastChange := time.Now()

	for {
		select {
		case <-s.watchdogStop:
			return
		case <-ticker.C:
		}

		if s.session.State() != StateActive {
			lastChange = time.Now()
			continue
		}

		end := index.ProducedEnd()
		if end != lastEnd {
			lastEnd = end
			lastChange = time.Now()
			continue
		}
		if end >= s.session.Total {
			// Everything from the current start through the asset end is
			// produced; nothing left to time out.
			continue
		}
		if meta, ok := index.Get(end); ok && meta.State == SegmentFailed {
			// Already surfaced; don't re-handle
			continue
		}
		if time.Since(lastChange) < s.cfg.SegmentTimeout {
			continue
		}

		meta, _ := index.Get(end)
		if meta.Retries < s.cfg.MaxRetries {
			index.Mark(end, SegmentWaiting, func(m *SegmentMeta) {
				m.Retries++
				m.LastError = "segment timed out, re-requesting"
			})
			s.log.Warn().
				Int("segment", end).
				Int("retries", meta.Retries+1).
				Msg("Segment stalled, restarting transcoder at its position")

			atSec := float64(end * s.session.SegmentDur)
			if err := s.Restart(atSec); err != nil {
				if s.session.State().IsTerminal() {
					return
				}
				// Likely raced a caller-driven restart; keep watching
				s.log.Warn().Err(err).Int("segment", end).Msg("Seek-driven retry failed, will retry")
				lastChange = time.Now()
				continue
			}
			lastChange = time.Now()
			continue
		}

		index.Mark(end, SegmentFailed, func(m *SegmentMeta) {
			m.LastError = fmt.Sprintf("segment timed out after %d retries", meta.Retries)
		})
		s.log.Error().
			Int("segment", end).
			Int("retries", meta.Retries).
			Msg("Segment failed permanently")
	}
}
