package pipeline

import (
	"sync"
	"time"

	"omnichannel/internal/analysis"
	"omnichannel/pkg/contracts/domain"
)

// RunStatus is the overall status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Artifacts carries stage outputs between steps of one run
type Artifacts struct {
	Stores    *domain.StoreSet
	Orders    []domain.Order
	Geo       []domain.GeoRecord
	Annotated []domain.AnnotatedOrder
	// Panel is the balanced panel without covariates
	Panel []domain.PanelRow
	// Joined is Panel with covariates attached
	Joined    []domain.PanelRow
	Matched   []domain.PanelRow
	Matches   []domain.Match
	SCM       []analysis.SCMRow
	SCMReport *analysis.SCMReport
}

// RunState is the state of one pipeline run
type RunState struct {
	mu sync.RWMutex

	ID        string
	Status    RunStatus
	StartTime time.Time
	EndTime   *time.Time
	Error     string

	steps map[string]*StepState
	order []string

	// Data is only touched by the step being executed
	Data *Artifacts
}

// RunSnapshot is a serializable copy of a RunState
type RunSnapshot struct {
	ID        string         `json:"id"`
	Status    RunStatus      `json:"status"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Error     string         `json:"error,omitempty"`
	Steps     []StepSnapshot `json:"steps"`
}

// NewRunState creates a pending run
func NewRunState(id string) *RunState {
	return &RunState{
		ID:     id,
		Status: RunStatusPending,
		steps:  make(map[string]*StepState),
		Data:   &Artifacts{},
	}
}

// AddStep registers a pending step state; existing states are kept
func (s *RunState) AddStep(id, name string) *StepState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.steps[id]; ok {
		return st
	}
	st := NewStepState(id, name)
	s.steps[id] = st
	s.order = append(s.order, id)
	return st
}

// Step returns the state of a step, or nil
func (s *RunState) Step(id string) *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps[id]
}

// Start marks the run as running
func (s *RunState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = RunStatusRunning
	s.StartTime = time.Now()
}

// Complete marks the run as completed
func (s *RunState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusCompleted
}

// Fail marks the run as failed
func (s *RunState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusFailed
	if err != nil {
		s.Error = err.Error()
	}
}

// Snapshot copies the run and its steps in execution order
func (s *RunState) Snapshot() RunSnapshot {
	s.mu.RLock()
	snap := RunSnapshot{
		ID:        s.ID,
		Status:    s.Status,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Error:     s.Error,
	}
	steps := make([]*StepState, 0, len(s.order))
	for _, id := range s.order {
		steps = append(steps, s.steps[id])
	}
	s.mu.RUnlock()

	snap.Steps = make([]StepSnapshot, 0, len(steps))
	for _, st := range steps {
		snap.Steps = append(snap.Steps, st.Snapshot())
	}
	return snap
}
