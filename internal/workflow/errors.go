package workflow

import (
	"errors"
	"fmt"
)

// ErrAlreadyRun is returned when Run is called on a used Workflow.
var ErrAlreadyRun = errors.New("workflow already run")

// StepError wraps the failure of the transition into Step.
type StepError struct {
	Step   State
	Target string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow step %s (%s): %v", e.Step, e.Target, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
