package streaming

import (
	"context"
	"sync"
	"time"
)

// SegmentState represents the lifecycle state of one segment
type SegmentState int

// Segment state constants
const (
	SegmentWaiting SegmentState = iota
	SegmentTranscoding
	SegmentCompleted
	SegmentFailed
)

// String returns the string representation of the segment state
func (s SegmentState) String() string {
	switch s {
	case SegmentWaiting:
		return "waiting"
	case SegmentTranscoding:
		return "transcoding"
	case SegmentCompleted:
		return "completed"
	case SegmentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SegmentMeta is the tracked metadata for one segment
type SegmentMeta struct {
	State       SegmentState `json:"state"`
	StartedAt   time.Time    `json:"started_at,omitempty"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`
	Retries     int          `json:"retries"`
	LastError   string       `json:"last_error,omitempty"`
}

// WaitOutcome is the terminal result of a WaitFor call
type WaitOutcome int

// Wait outcomes
const (
	WaitCompleted WaitOutcome = iota
	WaitFailed
	WaitTimeout
	WaitSessionGone
)

// String returns the string representation of the wait outcome
func (o WaitOutcome) String() string {
	switch o {
	case WaitCompleted:
		return "completed"
	case WaitFailed:
		return "failed"
	case WaitTimeout:
		return "timeout"
	case WaitSessionGone:
		return "session_gone"
	default:
		return "unknown"
	}
}

// IndexSnapshot summarizes segment counts for the status endpoint
type IndexSnapshot struct {
	Waiting     int `json:"waiting"`
	Transcoding int `json:"transcoding"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	ProducedEnd int `json:"produced_end"`
}

// SegmentIndex is a concurrent map from timeline-absolute segment number
// to metadata. Waiters block on a broadcast channel that is replaced on
// every state change, so each change releases all current waiters exactly
// once; non-terminal changes make them re-check and wait again.
type SegmentIndex struct {
	mu       sync.Mutex
	segments map[int]SegmentMeta
	notify   chan struct{}
	closed   bool
	startSeg int
	total    int
}

// NewSegmentIndex creates an index covering segments [0, total). startSeg
// is where the current runner begins producing; ProducedEnd is computed
// relative to it.
func NewSegmentIndex(startSeg, total int) *SegmentIndex {
	return &SegmentIndex{
		segments: make(map[int]SegmentMeta),
		notify:   make(chan struct{}),
		startSeg: startSeg,
		total:    total,
	}
}

// Mark atomically updates a segment's state and metadata, waking all
// current waiters.
func (idx *SegmentIndex) Mark(n int, state SegmentState, modify func(*SegmentMeta)) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return
	}

	meta := idx.segments[n]
	meta.State = state
	switch state {
	case SegmentTranscoding:
		if meta.StartedAt.IsZero() {
			meta.StartedAt = time.Now().UTC()
		}
	case SegmentCompleted:
		meta.CompletedAt = time.Now().UTC()
		meta.LastError = ""
	}
	if modify != nil {
		modify(&meta)
	}
	idx.segments[n] = meta

	idx.broadcastLocked()
}

// Get returns the metadata for a segment, or ok=false if never touched
func (idx *SegmentIndex) Get(n int) (SegmentMeta, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	meta, ok := idx.segments[n]
	return meta, ok
}

// SetStartSeg moves the producing region after a restart. Completed
// segments elsewhere in the timeline keep their state.
func (idx *SegmentIndex) SetStartSeg(startSeg int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.startSeg = startSeg
	idx.broadcastLocked()
}

// StartSeg returns the current producing region's first segment
func (idx *SegmentIndex) StartSeg() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.startSeg
}

// ProducedEnd returns the first segment number at or after the producing
// region's start that is not yet completed. Segments [startSeg,
// ProducedEnd) are all completed.
func (idx *SegmentIndex) ProducedEnd() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.producedEndLocked()
}

func (idx *SegmentIndex) producedEndLocked() int {
	n := idx.startSeg
	for n < idx.total {
		if meta, ok := idx.segments[n]; !ok || meta.State != SegmentCompleted {
			break
		}
		n++
	}
	return n
}

// WaitFor blocks until segment n reaches a terminal state, the deadline
// elapses, the caller's context is canceled, or the index is closed.
// Context cancellation (client disconnect) reports WaitTimeout to the
// caller without disturbing other waiters.
func (idx *SegmentIndex) WaitFor(ctx context.Context, n int, deadline time.Duration) WaitOutcome {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		idx.mu.Lock()
		if idx.closed {
			idx.mu.Unlock()
			return WaitSessionGone
		}
		meta := idx.segments[n]
		if meta.State == SegmentCompleted {
			idx.mu.Unlock()
			return WaitCompleted
		}
		if meta.State == SegmentFailed {
			idx.mu.Unlock()
			return WaitFailed
		}
		ch := idx.notify
		idx.mu.Unlock()

		select {
		case <-ch:
			// State changed somewhere; re-check
		case <-timer.C:
			return WaitTimeout
		case <-ctx.Done():
			return WaitTimeout
		}
	}
}

// Snapshot returns counts by state plus the produced end
func (idx *SegmentIndex) Snapshot() IndexSnapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	snap := IndexSnapshot{ProducedEnd: idx.producedEndLocked()}
	for _, meta := range idx.segments {
		switch meta.State {
		case SegmentWaiting:
			snap.Waiting++
		case SegmentTranscoding:
			snap.Transcoding++
		case SegmentCompleted:
			snap.Completed++
		case SegmentFailed:
			snap.Failed++
		}
	}
	return snap
}

// Entries returns a copy of all tracked segments keyed by number
func (idx *SegmentIndex) Entries() map[int]SegmentMeta {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make(map[int]SegmentMeta, len(idx.segments))
	for n, meta := range idx.segments {
		out[n] = meta
	}
	return out
}

// Total returns the expected segment count for the whole asset
func (idx *SegmentIndex) Total() int {
	return idx.total
}

// Close releases all outstanding waiters with WaitSessionGone. Subsequent
// Mark calls are ignored.
func (idx *SegmentIndex) Close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return
	}
	idx.closed = true
	idx.broadcastLocked()
}

// broadcastLocked wakes every current waiter. Callers hold idx.mu.
func (idx *SegmentIndex) broadcastLocked() {
	close(idx.notify)
	idx.notify = make(chan struct{})
}
