package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a stage in the life of a single conversion request.
type State string

const (
	StateReceived    State = "received"
	StateValidated   State = "validated"
	StateBuffered    State = "buffered"
	StateParsed      State = "parsed"
	StateSynthesized State = "synthesized"
	StateOCRDecided  State = "ocr_decided"
	StateProcessed   State = "processed"
	StateResponded   State = "responded"
	StateRejected    State = "rejected"
	StateFailed      State = "failed"
)

// Operation names used for logging.
const (
	OpAddTextLayer  = "AddTextLayer"
	OpImageToOCRPDF = "ProcessImageToOcrPdf"
)

var transitions = map[State][]State{
	StateReceived:    {StateValidated, StateRejected},
	StateValidated:   {StateBuffered, StateRejected, StateFailed},
	StateBuffered:    {StateParsed, StateSynthesized, StateRejected, StateFailed},
	StateParsed:      {StateOCRDecided, StateFailed},
	StateSynthesized: {StateOCRDecided, StateFailed},
	StateOCRDecided:  {StateProcessed, StateFailed},
	StateProcessed:   {StateResponded, StateFailed},
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateResponded || s == StateRejected || s == StateFailed
}

// Job tracks one request through the conversion pipeline.
type Job struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	Filename   string    `json:"filename"`
	State      State     `json:"state"`
	OCRApplied bool      `json:"ocr_applied"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	mu      sync.RWMutex
	history []State
}

// New creates a job in the received state.
func New(operation, filename string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Operation: operation,
		Filename:  filename,
		State:     StateReceived,
		CreatedAt: now,
		UpdatedAt: now,
		history:   []State{StateReceived},
	}
}

// Transition moves the job to the given state. Moves not allowed by the
// state machine leave the job unchanged and return an error.
func (j *Job) Transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transition(to)
}

func (j *Job) transition(to State) error {
	for _, allowed := range transitions[j.State] {
		if allowed == to {
			j.State = to
			j.UpdatedAt = time.Now()
			j.history = append(j.history, to)
			return nil
		}
	}
	return fmt.Errorf("job %s: illegal transition %s -> %s", j.ID, j.State, to)
}

// Reject marks the job as rejected because of invalid input.
func (j *Job) Reject(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transition(StateRejected); err != nil {
		return err
	}
	j.Error = reason
	return nil
}

// Fail marks the job as failed. A job that already reached a terminal
// state keeps it.
func (j *Job) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State.Terminal() {
		return
	}
	if j.State == StateReceived {
		// Nothing was accepted yet; the request was bad rather than the processing.
		j.State = StateRejected
		j.history = append(j.history, StateRejected)
	} else {
		j.State = StateFailed
		j.history = append(j.history, StateFailed)
	}
	if err != nil {
		j.Error = err.Error()
	}
	j.UpdatedAt = time.Now()
}

// SetOCRApplied records whether the OCR engine ran for this job.
func (j *Job) SetOCRApplied(applied bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OCRApplied = applied
	j.UpdatedAt = time.Now()
}

// Current returns the current state.
func (j *Job) Current() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// Terminal reports whether the job is finished.
func (j *Job) Terminal() bool {
	return j.Current().Terminal()
}

// History returns every state the job has been in, in order.
func (j *Job) History() []State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]State, len(j.history))
	copy(out, j.history)
	return out
}
