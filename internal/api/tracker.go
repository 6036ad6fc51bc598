package api

import (
	"sync"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
)

// Phase names the pipeline stage a run is in.
type Phase string

const (
	PhaseStarting    Phase = "starting"
	PhaseLoading     Phase = "loading"
	PhasePropagating Phase = "propagating"
	PhaseDetecting   Phase = "detecting"
	PhaseAggregating Phase = "aggregating"
	PhaseDone        Phase = "done"
	PhaseCancelled   Phase = "cancelled"
	PhaseFailed      Phase = "failed"
)

// RunStatus is the body of GET /api/v1/run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
	conjunction.Progress
}

// Tracker records the state of one pipeline run for the status server.
// All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	runID    string
	started  time.Time
	phase    Phase
	errMsg   string
	progress func() conjunction.Progress
}

// NewTracker returns a tracker in PhaseStarting.
func NewTracker(runID string, started time.Time) *Tracker {
	return &Tracker{runID: runID, started: started, phase: PhaseStarting}
}

// SetPhase moves the run to p.
func (t *Tracker) SetPhase(p Phase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
}

// Fail marks the run failed with err.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	t.phase = PhaseFailed
	if err != nil {
		t.errMsg = err.Error()
	}
	t.mu.Unlock()
}

// Attach sets the source of detection progress, usually Engine.Progress.
func (t *Tracker) Attach(progress func() conjunction.Progress) {
	t.mu.Lock()
	t.progress = progress
	t.mu.Unlock()
}

// Ready reports whether a run has started past startup.
func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase != PhaseStarting
}

// Snapshot returns the run status and whether the run has ended, for the
// progress stream.
func (t *Tracker) Snapshot() (any, bool) {
	st := t.Status()
	switch st.Phase {
	case PhaseDone, PhaseCancelled, PhaseFailed:
		return st, true
	}
	return st, false
}

// Status returns a snapshot of the run.
func (t *Tracker) Status() RunStatus {
	t.mu.RLock()
	st := RunStatus{
		RunID:     t.runID,
		Phase:     t.phase,
		StartedAt: t.started,
		Error:     t.errMsg,
	}
	progress := t.progress
	t.mu.RUnlock()

	if progress != nil {
		st.Progress = progress()
	}
	return st
}
