package session

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("session: invalid state transition")

// State is one phase of the connection lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateTransferring
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateTransferring:
		return "transferring"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	switch to {
	case StateClosed:
		return true
	case StateAuthenticated:
		return from == StateUnauthenticated || from == StateTransferring
	case StateTransferring:
		return from == StateAuthenticated
	default:
		return false
	}
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
