package e2e

import (
	"fmt"

	"github.com/Jython1415/mathnasium-session-notes/internal/failure"
)

// StageError is the failure of one pipeline stage.
type StageError struct {
	Stage State
	Kind  failure.Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageError wraps err for stage. An empty kind is derived from err.
func stageError(stage State, kind failure.Kind, err error) *StageError {
	if kind == "" {
		kind = failure.Classify(err)
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
