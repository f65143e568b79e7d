package domain

import (
	"database/sql/driver"
	"fmt"
)

// State is the aggregate lifecycle state of a SendRequest.
type State string

const (
	StateQueued         State = "QUEUED"
	StateSubmitted      State = "SUBMITTED"
	StateSent           State = "SENT"
	StateSendFailedTemp State = "SEND_FAILED_TEMP"
	StateSendFailedPerm State = "SEND_FAILED_PERM"
	StateDelivered      State = "DELIVERED"
	StateDeliveryFailed State = "DELIVERY_FAILED"
)

// allowedTransitions lists the forward moves the state machine may make on its own.
var allowedTransitions = map[State][]State{
	StateQueued:    {StateSubmitted},
	StateSubmitted: {StateSent, StateSendFailedTemp, StateSendFailedPerm},
	StateSent:      {StateDelivered, StateDeliveryFailed},
}

// redriveSources are the states a recovery pass may move back to SUBMITTED.
var redriveSources = map[State]bool{
	StateQueued:         true,
	StateSubmitted:      true,
	StateSendFailedTemp: true,
}

// IsValid reports whether s is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case StateQueued, StateSubmitted, StateSent, StateSendFailedTemp,
		StateSendFailedPerm, StateDelivered, StateDeliveryFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateSendFailedPerm || s == StateDelivered || s == StateDeliveryFailed
}

// CanTransitionTo reports whether s -> next is a forward lifecycle move.
func (s State) CanTransitionTo(next State) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CanRedrive reports whether a request in s may be re-submitted by recovery.
func (s State) CanRedrive() bool {
	return redriveSources[s]
}

// NonTerminalStates returns every state a recovery scan has to look at.
func NonTerminalStates() []State {
	return []State{StateQueued, StateSubmitted, StateSent, StateSendFailedTemp}
}

// ParseState converts a stored string into a State.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown state value: %q", raw)
	}
	return s, nil
}

// Value implements the driver.Valuer interface for State.
func (s State) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface for State.
func (s *State) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan State: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	parsed, err := ParseState(strVal)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
