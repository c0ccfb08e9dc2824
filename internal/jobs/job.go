package jobs

import (
	"time"

	"github.com/google/uuid"

	"streamvio/internal/apperr"
)

// State is a job lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateProcessing || to == StateCancelled || to == StateFailed
	case StateProcessing:
		return to == StateCompleted || to == StateFailed || to == StateCancelled
	}
	return false
}

// ProgressUnknown is reported before the encoder has emitted any progress.
const ProgressUnknown = -1.0

// Job is a unit of work producing one artifact from one source file.
type Job struct {
	ID          string      `json:"id"`
	MediaID     string      `json:"mediaId"`
	Kind        Kind        `json:"kind"`
	State       State       `json:"state"`
	InputPath   string      `json:"inputPath"`
	OutputPath  string      `json:"outputPath,omitempty"`
	Options     Options     `json:"options"`
	Key         string      `json:"-"`
	Error       string      `json:"error,omitempty"`
	ErrorCode   apperr.Code `json:"errorCode,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	Progress    float64     `json:"progress"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// New creates a pending job with normalized options and a fresh id.
func New(mediaID, inputPath string, opts Options) *Job {
	opts = opts.Normalize()
	return &Job{
		ID:        uuid.NewString(),
		MediaID:   mediaID,
		Kind:      opts.Kind(),
		State:     StatePending,
		InputPath: inputPath,
		Options:   opts,
		Key:       DedupeKey(mediaID, opts),
		Progress:  ProgressUnknown,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a copy safe to hand to callers outside the owning goroutine.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// AddNote appends a reconciliation note.
func (j *Job) AddNote(note string) {
	if j.Notes == "" {
		j.Notes = note
		return
	}
	j.Notes += "; " + note
}
