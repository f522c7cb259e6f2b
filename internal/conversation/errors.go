package conversation

import "errors"

var (
	// ErrInvalidUserInput is returned for empty spec or reply text and for
	// unknown feedback suggestions. The user should be re-prompted.
	ErrInvalidUserInput = errors.New("invalid user input")
	// ErrInvalidTransition is returned when an action does not apply to the
	// agent's current phase.
	ErrInvalidTransition = errors.New("invalid conversation state transition")
	// ErrOutputAlreadySet is returned when the output was already produced.
	ErrOutputAlreadySet = errors.New("agent output already produced")
)
