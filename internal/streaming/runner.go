package streaming

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// RunnerStopGrace is how long Stop waits after the terminate signal
// before force-killing the process.
const RunnerStopGrace = 5 * time.Second

// stderrTailLines is how many trailing stderr lines are retained for
// error classification after the process exits.
const stderrTailLines = 20

// Runner errors
var (
	ErrRunnerAlreadyStarted = errors.New("runner already started")
	ErrRunnerNotStarted     = errors.New("runner not started")
)

// Progress is a parsed transcoder progress report
type Progress struct {
	Timecode time.Duration // position in the output timeline
	Speed    float64       // encode speed relative to realtime
}

// ExitResult describes how the transcoder process terminated
type ExitResult struct {
	Code       int
	Err        error  // nil on exit code 0
	StderrTail string // last stderr lines, for classification
}

// Runner wraps a single external transcoder invocation. It owns the
// process handle: only the supervisor that created it signals or reaps it.
type Runner struct {
	binary     string
	args       []string
	workDir    string
	log        zerolog.Logger
	onProgress func(Progress)

	mu       sync.Mutex
	cmd      *exec.Cmd
	started  bool
	stopping bool

	// done is closed by reap after result is stored, so any number of
	// readers can observe the exit.
	done     chan struct{}
	result   ExitResult
	stopOnce sync.Once

	tailMu     sync.Mutex
	stderrTail []string
}

// NewRunner creates a runner for one transcoder invocation. onProgress may
// be nil.
func NewRunner(binary string, args []string, workDir string, log zerolog.Logger, onProgress func(Progress)) *Runner {
	return &Runner{
		binary:     binary,
		args:       args,
		workDir:    workDir,
		log:        log,
		onProgress: onProgress,
		done:       make(chan struct{}),
	}
}

// Start launches the process. It fails if the binary is missing or the
// work directory cannot be created.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrRunnerAlreadyStarted
	}

	binPath, err := exec.LookPath(r.binary)
	if err != nil {
		return NewTranscodeError(ErrorTypeBinaryMissing, fmt.Sprintf("transcoder %q not found", r.binary), err)
	}

	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	cmd := exec.Command(binPath, r.args...)
	cmd.Dir = r.workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start transcoder: %w", err)
	}

	r.cmd = cmd
	r.started = true

	go r.drainProgress(stdout)
	go r.drainStderr(stderr)
	go r.reap()

	r.log.Info().
		Int("pid", cmd.Process.Pid).
		Int64("start_latency_ms", time.Since(startTime).Milliseconds()).
		Msg("Transcoder process launched")

	return nil
}

// Done returns a channel closed when the process has terminated
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the process terminates and returns how it exited.
// Safe to call from any number of goroutines, before or after the exit.
func (r *Runner) Wait() ExitResult {
	<-r.done
	return r.result
}

// Pid returns the process ID, or 0 if not started
func (r *Runner) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// Stop requests graceful shutdown, waits gracePeriod, then force-kills if
// the process is still running. It is idempotent; repeated calls return
// after the first teardown completes.
func (r *Runner) Stop(gracePeriod time.Duration) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	cmd := r.cmd
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		pid := cmd.Process.Pid
		r.log.Debug().Int("pid", pid).Msg("Sending SIGTERM to transcoder")

		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			r.log.Warn().Err(err).Int("pid", pid).Msg("Failed to send SIGTERM")
		}

		select {
		case <-r.done:
			r.log.Debug().Int("pid", pid).Msg("Transcoder exited gracefully")
		case <-time.After(gracePeriod):
			r.log.Warn().
				Int("pid", pid).
				Dur("grace_period", gracePeriod).
				Msg("Transcoder did not exit gracefully, sending SIGKILL")
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				r.log.Error().Err(err).Int("pid", pid).Msg("Failed to kill transcoder")
			}
			<-r.done
		}
	})
}

// Stopping reports whether Stop has been requested
func (r *Runner) Stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

// reap waits for process exit, stores the result and closes the
// completion channel exactly once.
func (r *Runner) reap() {
	err := r.cmd.Wait()

	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = -1
	}

	r.tailMu.Lock()
	tail := strings.Join(r.stderrTail, "\n")
	r.tailMu.Unlock()

	r.log.Debug().
		Int("exit_code", code).
		Msg("Transcoder process exited")

	r.result = ExitResult{Code: code, Err: err, StderrTail: tail}
	close(r.done)
}

// drainProgress parses the transcoder's key=value progress stream from
// stdout. Reports are delivered on each "progress=" terminator line.
func (r *Runner) drainProgress(reader io.Reader) {
	scanner := bufio.NewScanner(reader)

	var current Progress
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				current.Timecode = time.Duration(us) * time.Microsecond
			}
		case "speed":
			if sp, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				current.Speed = sp
			}
		case "progress":
			if r.onProgress != nil {
				r.onProgress(current)
			}
		}
	}
}

// drainStderr forwards transcoder stderr lines to the structured logger
// and keeps a short tail for post-mortem classification.
func (r *Runner) drainStderr(reader io.Reader) {
	scanner := bufio.NewScanner(reader)

	for scanner.Scan() {
		line := scanner.Text()

		r.tailMu.Lock()
		r.stderrTail = append(r.stderrTail, line)
		if len(r.stderrTail) > stderrTailLines {
			r.stderrTail = r.stderrTail[1:]
		}
		r.tailMu.Unlock()

		if isErrorLine(line) {
			r.log.Error().Str("output", line).Msg("Transcoder error")
		} else {
			r.log.Debug().Str("output", line).Msg("Transcoder output")
		}
	}

	if err := scanner.Err(); err != nil {
		r.log.Warn().Err(err).Msg("Error reading transcoder stderr")
	}
}

// isErrorLine checks if a stderr line contains error indicators
func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "fatal")
}
