package fsm

import "fmt"

// ErrorCode identifies the kind of error a transition or constructor call
// failed with. Grounded on pkg/statemachine/types.go's StateMachineError
// (Message/Code/State/Event fields).
type ErrorCode string

const (
	// ErrUnknownState: the target's root segment has no entry function.
	ErrUnknownState ErrorCode = "UNKNOWN_STATE"
	// ErrUnknownSubState: the root exists but the sub-segment does not.
	ErrUnknownSubState ErrorCode = "UNKNOWN_SUB_STATE"
	// ErrMalformedState: the target has more than one dot.
	ErrMalformedState ErrorCode = "MALFORMED_STATE"
	// ErrHandleAlreadyUsed: gotoState called on an invalidated handle.
	ErrHandleAlreadyUsed ErrorCode = "HANDLE_ALREADY_USED"
	// ErrInvalidTransition: target absent from the active validTransitions list.
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ErrAllStateEventMissing: a required all-state event has no listener
	// after a transition.
	ErrAllStateEventMissing ErrorCode = "ALL_STATE_EVENT_MISSING"
	// ErrArgumentType: a constructor/builder argument had the wrong type
	// or shape.
	ErrArgumentType ErrorCode = "ARGUMENT_TYPE"
)

// Error is the concrete error type raised by this package. Code allows
// callers to switch on failure kind without parsing Message.
type Error struct {
	Code    ErrorCode
	Message string

	State  string // current/entered state, when applicable
	Target string // attempted target state, when applicable
	Event  string // missing/offending event or argument name, or (ErrHandleAlreadyUsed) the state the handle already entered
}

func (e *Error) Error() string {
	return e.Message
}

func newUnknownStateError(target string) error {
	return &Error{
		Code:    ErrUnknownState,
		Message: fmt.Sprintf("Unknown FSM state: %s", target),
		Target:  target,
	}
}

func newUnknownSubStateError(target string) error {
	return &Error{
		Code:    ErrUnknownSubState,
		Message: fmt.Sprintf("Unknown FSM sub-state: %s", target),
		Target:  target,
	}
}

func newMalformedStateError(target string) error {
	return &Error{
		Code:    ErrMalformedState,
		Message: fmt.Sprintf("Malformed FSM state (too many dots): %s", target),
		Target:  target,
	}
}

func newHandleAlreadyUsedError(current, attempted, previous string) error {
	return &Error{
		Code: ErrHandleAlreadyUsed,
		Message: fmt.Sprintf(
			"FSM attempted to leave state %s towards %s via a handle that was already used to enter state %s",
			current, attempted, previous,
		),
		State:  current,
		Target: attempted,
		Event:  previous,
	}
}

func newInvalidTransitionError(current, attempted string) error {
	return &Error{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("Invalid FSM transition: %s => %s", current, attempted),
		State:   current,
		Target:  attempted,
	}
}

func newAllStateEventMissingError(state, event string) error {
	return &Error{
		Code:    ErrAllStateEventMissing,
		Message: fmt.Sprintf("FSM state %s did not register a listener for required all-state event %q", state, event),
		State:   state,
		Event:   event,
	}
}

func newArgumentTypeError(argument, reason string) error {
	return &Error{
		Code:    ErrArgumentType,
		Message: fmt.Sprintf("FSM argument %s: %s", argument, reason),
		Event:   argument,
	}
}
