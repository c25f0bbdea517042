package e2e

import (
	"errors"
	"fmt"
)

// State is a stage of the E2E pipeline. Each non-terminal state names the
// stage that has just completed.
type State string

const (
	NotStarted          State = "not_started"
	FileValidated       State = "file_validated"
	Navigated           State = "navigated"
	FileUploaded        State = "file_uploaded"
	ProcessingTriggered State = "processing_triggered"
	ProcessingComplete  State = "processing_complete"
	ResultsExtracted    State = "results_extracted"
	Validated           State = "validated"
	Passed              State = "passed"
	Failed              State = "failed"
)

// Pipeline lists the non-terminal stages in order.
var Pipeline = []State{
	FileValidated,
	Navigated,
	FileUploaded,
	ProcessingTriggered,
	ProcessingComplete,
	ResultsExtracted,
	Validated,
}

// Terminal reports whether s ends the pipeline.
func (s State) Terminal() bool {
	return s == Passed || s == Failed
}

// ErrIllegalTransition is wrapped by every rejected transition.
var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State][]State{
	NotStarted:          {FileValidated},
	FileValidated:       {Navigated},
	Navigated:           {FileUploaded},
	FileUploaded:        {ProcessingTriggered},
	ProcessingTriggered: {ProcessingComplete},
	ProcessingComplete:  {ResultsExtracted},
	ResultsExtracted:    {Validated},
	Validated:           {Passed},
}

// CanTransition reports whether from -> to is allowed. Any non-terminal
// state may move to Failed.
func CanTransition(from, to State) bool {
	if to == Failed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine tracks the pipeline state and its history.
type Machine struct {
	state   State
	history []State
}

// NewMachine returns a machine in NotStarted.
func NewMachine() *Machine {
	return &Machine{state: NotStarted, history: []State{NotStarted}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns every state visited, in order.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Advance moves to the next state.
func (m *Machine) Advance(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}
