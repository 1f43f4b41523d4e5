package model

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a device.
type State string

const (
	StateAvailable State = "Available"
	StateInUse     State = "InUse"
	StateInactive  State = "Inactive"
)

func (s State) String() string {
	return string(s)
}

func (s State) IsValid() bool {
	switch s {
	case StateAvailable, StateInUse, StateInactive:
		return true
	default:
		return false
	}
}

// ParseState matches s case-insensitively against the known states and
// returns the canonical spelling.
func ParseState(s string) (State, error) {
	candidate := strings.TrimSpace(s)

	for _, state := range AllStates() {
		if strings.EqualFold(candidate, state.String()) {
			return state, nil
		}
	}

	return "", &LifecycleError{
		Kind:    ErrInvalidInput,
		Message: fmt.Sprintf("invalid state %q. Valid values: %s.", s, validStatesList()),
	}
}

func AllStates() []State {
	return []State{StateAvailable, StateInUse, StateInactive}
}

func validStatesList() string {
	names := make([]string, 0, 3)
	for _, state := range AllStates() {
		names = append(names, state.String())
	}

	return strings.Join(names, ", ")
}
