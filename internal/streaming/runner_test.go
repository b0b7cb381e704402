package streaming

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShellRunner(t *testing.T, script string, onProgress func(Progress)) *Runner {
	t.Helper()
	workDir := filepath.Join(t.TempDir(), "work-0")
	return NewRunner("sh", []string{"-c", script}, workDir, zerolog.Nop(), onProgress)
}

func waitExit(t *testing.T, r *Runner) ExitResult {
	t.Helper()
	select {
	case <-r.Done():
		return r.Wait()
	case <-time.After(5 * time.Second):
		t.Fatal("runner never exited")
		return ExitResult{}
	}
}

func TestRunner_CleanExit(t *testing.T) {
	r := newShellRunner(t, "exit 0", nil)
	require.NoError(t, r.Start())

	res := waitExit(t, r)
	assert.Equal(t, 0, res.Code)
	assert.NoError(t, res.Err)
}

func TestRunner_NonZeroExit(t *testing.T) {
	r := newShellRunner(t, "exit 3", nil)
	require.NoError(t, r.Start())

	res := waitExit(t, r)
	assert.Equal(t, 3, res.Code)
	assert.Error(t, res.Err)
}

func TestRunner_BinaryMissing(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "work-0")
	r := NewRunner("no-such-transcoder-binary", nil, workDir, zerolog.Nop(), nil)

	err := r.Start()
	var tErr *TranscodeError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ErrorTypeBinaryMissing, tErr.Type)
}

func TestRunner_DoubleStart(t *testing.T) {
	r := newShellRunner(t, "exit 0", nil)
	require.NoError(t, r.Start())

	assert.ErrorIs(t, r.Start(), ErrRunnerAlreadyStarted)
	waitExit(t, r)
}

func TestRunner_ProgressParsing(t *testing.T) {
	var mu sync.Mutex
	var reports []Progress

	script := `printf "out_time_us=4000000\nspeed=2.5x\nprogress=continue\n"`
	r := newShellRunner(t, script, func(p Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	})
	require.NoError(t, r.Start())
	waitExit(t, r)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reports) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4*time.Second, reports[0].Timecode)
	assert.Equal(t, 2.5, reports[0].Speed)
}

func TestRunner_StderrTail(t *testing.T) {
	r := newShellRunner(t, `echo "Error opening input: boom" 1>&2; exit 1`, nil)
	require.NoError(t, r.Start())

	res := waitExit(t, r)
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.StderrTail, "Error opening input: boom")
}

func TestRunner_StopKillsLongRunningProcess(t *testing.T) {
	r := newShellRunner(t, "sleep 30", nil)
	require.NoError(t, r.Start())

	start := time.Now()
	r.Stop(200 * time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, r.Stopping())

	// Readers after Stop still observe the exit
	res := waitExit(t, r)
	assert.NotEqual(t, 0, res.Code)
}

// The exit must be observable by every interested party: the supervisor's
// exit watcher consuming it first must not starve a concurrent Stop or any
// later Wait.
func TestRunner_ExitObservableByAllReaders(t *testing.T) {
	r := newShellRunner(t, "exit 2", nil)
	require.NoError(t, r.Start())

	first := r.Wait() // exit-watcher style consumer

	done := make(chan struct{})
	go func() {
		r.Stop(100 * time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked after the exit was already consumed")
	}

	second := r.Wait()
	assert.Equal(t, 2, first.Code)
	assert.Equal(t, first, second)
}

func TestRunner_StopBeforeStart(t *testing.T) {
	r := newShellRunner(t, "exit 0", nil)
	r.Stop(time.Millisecond)
	assert.False(t, r.Stopping())
}

func TestIsErrorLine(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"Error while decoding stream", true},
		{"Conversion failed!", true},
		{"fatal: unexpected EOF", true},
		{"frame=  100 fps= 25", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isErrorLine(tc.line); got != tc.want {
			t.Errorf("isErrorLine(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}
