package service

import "fmt"

// State is the lifecycle stage of one client connection.
type State string

type event string

const (
	StateAwaitingStart State = "awaiting-start"
	StateActive        State = "active"
	StateClosing       State = "closing"
	StateClosed        State = "closed"
)

const (
	eventStart      event = "start"
	eventRequest    event = "request"
	eventDisconnect event = "disconnect"
	eventViolation  event = "violation"
	eventDrained    event = "drained"
)

func (s State) String() string { return string(s) }

func transition(current State, ev event) (State, error) {
	if ev == eventViolation && current != StateClosed {
		return StateClosed, nil
	}

	switch current {
	case StateAwaitingStart:
		switch ev {
		case eventStart:
			return StateActive, nil
		case eventDisconnect:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, ev)
		}
	case StateActive:
		switch ev {
		case eventStart, eventRequest:
			return StateActive, nil
		case eventDisconnect:
			return StateClosing, nil
		default:
			return current, invalidTransition(current, ev)
		}
	case StateClosing:
		switch ev {
		case eventDrained:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, ev)
		}
	case StateClosed:
		return current, invalidTransition(current, ev)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, ev event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, ev)
}
