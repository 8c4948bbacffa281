package machine

import "errors"

// Predefined error types.
var (
	// Construction-time errors.

	// ErrUnknownEdge indicates a transition was bound to an edge the
	// topology does not declare.
	ErrUnknownEdge = errors.New("transition bound to undeclared edge")
	// ErrUnboundEdge indicates a declared edge has no bound transition.
	ErrUnboundEdge = errors.New("declared edge has no bound transition")
	// ErrDuplicateTransition indicates two transitions were bound to the
	// same edge.
	ErrDuplicateTransition = errors.New("edge bound more than once")
	// ErrMissingConvert indicates a transition lacks its conversion.
	ErrMissingConvert = errors.New("transition has no conversion")
	// ErrNoErrorState indicates a fallible machine was built on a
	// topology without a designated error state.
	ErrNoErrorState = errors.New("topology declares no error state")
	// ErrMissingRecover indicates a fallible machine was built without a
	// recover function.
	ErrMissingRecover = errors.New("recover function is required")

	// Call-discipline errors.

	// ErrAlreadyRunning indicates Start was called on a running machine.
	ErrAlreadyRunning = errors.New("machine is already running")
	// ErrNotRunning indicates Step or Stop was called while the machine
	// is not running.
	ErrNotRunning = errors.New("machine is not running")
	// ErrInitialStateMismatch indicates the state object handed to Start
	// does not identify as the declared initial state.
	ErrInitialStateMismatch = errors.New("initial state object does not match declared initial state")

	// ErrErrorStateFailed indicates the error state itself failed, either
	// because it was already active when a fault occurred or because its
	// own entry failed. The machine is no longer safely steppable.
	ErrErrorStateFailed = errors.New("error state failed")
)
