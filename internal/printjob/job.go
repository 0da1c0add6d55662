// Package printjob turns paginated documents into LabelWriter print sessions.
package printjob

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mzyy94/airlabel/internal/printer"
)

var (
	// ErrCancelled is returned for a job stopped by Cancel.
	ErrCancelled = errors.New("print job cancelled")
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("print job not found")
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StatePrinting  State = "printing"
	StateComplete  State = "complete"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled || s == StateFailed
}

// Job tracks one print job. Progress only increases and never exceeds 1.
type Job struct {
	id      string
	printer printer.Identity
	pages   int
	media   string
	created time.Time

	cancelled atomic.Bool
	done      chan struct{}

	mu       sync.RWMutex
	state    State
	progress float64
	err      error
	finished time.Time
	proof    string
}

// Snapshot is a point-in-time copy of a job.
type Snapshot struct {
	ID         string           `json:"id"`
	Printer    printer.Identity `json:"printer"`
	Pages      int              `json:"pages"`
	Media      string           `json:"media,omitempty"`
	State      State            `json:"state"`
	Progress   float64          `json:"progress"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  string           `json:"createdAt"`            // RFC3339
	FinishedAt string           `json:"finishedAt,omitempty"` // RFC3339
	ProofPath  string           `json:"proofPath,omitempty"`
}

func newJob(id printer.Identity, pages int, media string) *Job {
	return &Job{
		id:      uuid.NewString(),
		printer: id,
		pages:   pages,
		media:   media,
		created: time.Now(),
		done:    make(chan struct{}),
		state:   StateQueued,
	}
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Snapshot returns a copy of the current job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Snapshot{
		ID:        j.id,
		Printer:   j.printer,
		Pages:     j.pages,
		Media:     j.media,
		State:     j.state,
		Progress:  j.progress,
		CreatedAt: j.created.UTC().Format(time.RFC3339),
		ProofPath: j.proof,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	if !j.finished.IsZero() {
		s.FinishedAt = j.finished.UTC().Format(time.RFC3339)
	}
	return s
}

// Progress returns the current progress in [0, 1].
func (j *Job) Progress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Err returns the error that ended the job, if any.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Cancel requests cancellation. The page being transmitted finishes; no
// further pages are sent.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StatePrinting
}

// raiseProgress sets progress to at least p.
func (j *Job) raiseProgress(p float64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = min(max(j.progress, p), 1)
	return j.progress
}

// addProgress increases progress by delta, capped at 1.
func (j *Job) addProgress(delta float64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if delta > 0 {
		j.progress = min(j.progress+delta, 1)
	}
	return j.progress
}

func (j *Job) setProof(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.proof = path
}

// finish moves the job to a terminal state. Only the first call has effect.
func (j *Job) finish(state State, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = state
	j.err = err
	j.finished = time.Now()
	if state == StateComplete {
		j.progress = 1
	}
	close(j.done)
	return true
}
