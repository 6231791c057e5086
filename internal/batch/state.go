// Package batch owns the in-memory batch of assets and drives each one
// through analysis and enhancement.
package batch

import (
	"fmt"
	"slices"
)

// State is the per-asset pipeline state.
type State string

const (
	StateQueued     State = "queued"
	StateAnalyzing  State = "analyzing"
	StateReady      State = "ready"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// transitions lists the allowed next states. Retry re-enters processing
// directly from completed or error.
var transitions = map[State][]State{
	StateQueued:     {StateAnalyzing},
	StateAnalyzing:  {StateReady, StateError},
	StateReady:      {StateProcessing},
	StateProcessing: {StateCompleted, StateError},
	StateCompleted:  {StateProcessing},
	StateError:      {StateProcessing},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// IsActive reports whether a remote call is in flight in this state.
func (s State) IsActive() bool {
	return s == StateAnalyzing || s == StateProcessing
}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
