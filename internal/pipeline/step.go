package pipeline

import (
	"context"
	"sync"
	"time"
)

// Step is one stage of the pipeline
type Step interface {
	// ID returns the unique identifier, also used as CLI command name
	ID() string

	// Name returns the human-readable name
	Name() string

	// Validate checks configuration before any data is read
	Validate(state *RunState) error

	// Execute runs the step. Implementations record row counts on the
	// step's state.
	Execute(ctx context.Context, state *RunState) error
}

// StepStatus represents the current status of a Step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepState is the runtime state of a Step
type StepState struct {
	mu        sync.RWMutex
	ID        string
	Name      string
	Status    StepStatus
	StartTime *time.Time
	EndTime   *time.Time
	RowsIn    int
	RowsOut   int
	Dropped   map[string]int
	Message   string
	Error     string
}

// StepSnapshot is a copy of a StepState safe to serialize
type StepSnapshot struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    StepStatus     `json:"status"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Duration  string         `json:"duration,omitempty"`
	RowsIn    int            `json:"rows_in"`
	RowsOut   int            `json:"rows_out"`
	Dropped   map[string]int `json:"dropped,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewStepState creates a pending step state
func NewStepState(id, name string) *StepState {
	return &StepState{ID: id, Name: name, Status: StepStatusPending}
}

// Start marks the Step as active and sets the start time
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
}

// Complete marks the Step as completed and sets the end time
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
}

// Fail marks the Step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	if err != nil {
		s.Error = err.Error()
	}
}

// SetRows records how many rows the step consumed, produced and dropped
func (s *StepState) SetRows(in, out int, dropped map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.RowsIn = in
	s.RowsOut = out
	s.Dropped = dropped
}

// SetMessage attaches a short summary shown by the status endpoint
func (s *StepState) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Message = message
}

// Rows returns the recorded row counts
func (s *StepState) Rows() (in, out int, dropped map[string]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RowsIn, s.RowsOut, s.Dropped
}

// Duration returns the duration of the Step execution
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// Snapshot copies the state
func (s *StepState) Snapshot() StepSnapshot {
	d := s.Duration()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StepSnapshot{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.Status,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		RowsIn:    s.RowsIn,
		RowsOut:   s.RowsOut,
		Message:   s.Message,
		Error:     s.Error,
	}
	if d > 0 {
		snap.Duration = d.String()
	}
	if len(s.Dropped) > 0 {
		snap.Dropped = make(map[string]int, len(s.Dropped))
		for k, v := range s.Dropped {
			snap.Dropped[k] = v
		}
	}
	return snap
}

// BaseStep provides the identity part of a Step
type BaseStep struct {
	id   string
	name string
}

// NewBaseStep creates a new base step
func NewBaseStep(id, name string) BaseStep {
	return BaseStep{id: id, name: name}
}

// ID returns the step ID
func (b BaseStep) ID() string { return b.id }

// Name returns the step name
func (b BaseStep) Name() string { return b.name }

// Validate passes by default
func (b BaseStep) Validate(*RunState) error { return nil }
