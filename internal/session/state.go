package session

import (
	"fmt"

	"flotta/internal/core"
)

// State is a step of the entry dialog.
type State int

const (
	StateSelectVehicle State = iota + 1
	StateCollectDriver
	StateCollectOdometer
	StateCollectNotes
	StateCompleted
	StateCancelled
)

var stateNames = map[State]string{
	StateSelectVehicle:   "SelectVehicle",
	StateCollectDriver:   "CollectDriver",
	StateCollectOdometer: "CollectOdometer",
	StateCollectNotes:    "CollectNotes",
	StateCompleted:       "Completed",
	StateCancelled:       "Cancelled",
}

// transitions lists every legal move. Cancelled is reachable from every
// non-terminal state; terminal states have no way out.
var transitions = map[State][]State{
	StateSelectVehicle:   {StateCollectDriver, StateCancelled},
	StateCollectDriver:   {StateCollectOdometer, StateCancelled},
	StateCollectOdometer: {StateCollectNotes, StateCancelled},
	StateCollectNotes:    {StateCompleted, StateCancelled},
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// CanTransition reports whether s -> to is in the transition table.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown session state %d", int(s))
	}
	return []byte(name), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", string(b))
}

// checkTransition returns ErrInvalidTransition when from -> to is not allowed.
func checkTransition(from, to State) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, to)
	}
	return nil
}
