package model

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Job status constants.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	// ErrAlreadyProcessed is returned when a work item is finished twice.
	ErrAlreadyProcessed = errors.New("work item already processed")

	// ErrOutputLength is returned when an output does not match the input length.
	ErrOutputLength = errors.New("output length does not match input length")
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// PricePoint is one OHLC record of a submitted price series.
type PricePoint struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// WorkItem is one computation request and its eventual result.
//
// The input is fixed at construction. The output is written exactly once by
// the worker that processed the item, through Complete or Fail.
type WorkItem struct {
	id          int64
	input       []PricePoint
	submittedAt time.Time

	mu         sync.Mutex
	processed  bool
	output     []float64
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// NewWorkItem creates a pending work item. The input slice is copied.
func NewWorkItem(id int64, input []PricePoint) *WorkItem {
	return &WorkItem{
		id:          id,
		input:       slices.Clone(input),
		submittedAt: time.Now().UTC(),
	}
}

// ID returns the item identifier.
func (w *WorkItem) ID() int64 { return w.id }

// Len returns the number of input records.
func (w *WorkItem) Len() int { return len(w.input) }

// SubmittedAt returns the creation time of the item.
func (w *WorkItem) SubmittedAt() time.Time { return w.submittedAt }

// Input returns a copy of the input records.
func (w *WorkItem) Input() []PricePoint {
	return slices.Clone(w.input)
}

// Records exposes the input records without copying. Callers must not modify
// the returned slice.
func (w *WorkItem) Records() []PricePoint {
	return w.input
}

// Output returns a copy of the computed output and whether it is present.
func (w *WorkItem) Output() ([]float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.output == nil {
		return nil, false
	}
	return slices.Clone(w.output), true
}

// Err returns the processing error of a failed item.
func (w *WorkItem) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Status derives the item status from its output.
func (w *WorkItem) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case !w.processed:
		return StatusPending
	case w.output != nil:
		return StatusCompleted
	default:
		return StatusFailed
	}
}

// MarkStarted records the time the worker picked the item up.
func (w *WorkItem) MarkStarted(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startedAt = t
}

// Complete attaches the computed output. It fails if the item was already
// processed or if the output length differs from the input length.
func (w *WorkItem) Complete(output []float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processed {
		return ErrAlreadyProcessed
	}
	if len(output) != len(w.input) {
		return fmt.Errorf("%w: got %d, want %d", ErrOutputLength, len(output), len(w.input))
	}
	w.processed = true
	w.output = slices.Clone(output)
	if w.output == nil {
		// Empty but present output still counts as completed.
		w.output = []float64{}
	}
	w.finishedAt = time.Now().UTC()
	return nil
}

// Fail marks the item as processed without output.
func (w *WorkItem) Fail(cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processed {
		return ErrAlreadyProcessed
	}
	w.processed = true
	w.err = cause
	w.finishedAt = time.Now().UTC()
	return nil
}

// Snapshot returns the immutable completion view of the item.
func (w *WorkItem) Snapshot() Completion {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := Completion{
		ID:          w.id,
		InputLen:    len(w.input),
		Err:         w.err,
		SubmittedAt: w.submittedAt,
		StartedAt:   w.startedAt,
		FinishedAt:  w.finishedAt,
	}
	if w.output != nil {
		c.Output = slices.Clone(w.output)
	}
	return c
}

// Completion is the notification delivered once a work item finishes.
// Output is nil when processing failed.
type Completion struct {
	ID          int64
	InputLen    int
	Output      []float64
	Err         error
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Succeeded reports whether the completion carries an output.
func (c Completion) Succeeded() bool {
	return c.Output != nil
}

// Status returns the terminal status of the completion.
func (c Completion) Status() string {
	if c.Succeeded() {
		return StatusCompleted
	}
	return StatusFailed
}

// Duration returns the time spent processing the item.
func (c Completion) Duration() time.Duration {
	if c.StartedAt.IsZero() || c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}
