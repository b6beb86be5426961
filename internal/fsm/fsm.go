// Package fsm models the lifecycle of one upload on the signing service.
package fsm

import "fmt"

type State string

type Event string

const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StateValidated  State = "validated"
	StateSigning    State = "signing"
	StateSigned     State = "signed"
	StateFailed     State = "failed"
)

const (
	EventBeginValidation Event = "begin_validation"
	EventPassValidation  Event = "pass_validation"
	EventBeginSigning    Event = "begin_signing"
	EventFinishSigning   Event = "finish_signing"
	EventFail            Event = "fail"
)

// Transition applies one lifecycle event and returns the next state. EventFail
// is accepted from any state except signed; all other events are only legal in
// the order the signing service reports them.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		if current == StateSigned {
			return current, invalidTransition(current, event)
		}
		return StateFailed, nil
	}

	switch current {
	case StateReceived:
		switch event {
		case EventBeginValidation:
			return StateValidating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateValidating:
		switch event {
		case EventPassValidation:
			return StateValidated, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateValidated:
		switch event {
		case EventBeginSigning:
			return StateSigning, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSigning:
		switch event {
		case EventFinishSigning:
			return StateSigned, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSigned, StateFailed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Terminal reports whether no further lifecycle events are expected.
func Terminal(s State) bool {
	return s == StateSigned || s == StateFailed
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
