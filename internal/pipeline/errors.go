package pipeline

import (
	"errors"
	"fmt"
)

// StageError reports the step a run failed in
type StageError struct {
	Step  string `json:"step"`
	Cause error  `json:"-"`
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e == nil {
		return "unknown stage error"
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// WrapError attaches the step ID to err. Errors that already carry a step
// are returned unchanged.
func WrapError(err error, step string) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Step: step, Cause: err}
}

// FailedStep returns the step named by err, if any
func FailedStep(err error) (string, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}
