package domain

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfiguration marks bad window or threshold parameters,
	// rejected before any unit of work runs.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrOperationAlreadyRunning is returned when a start is requested for
	// an operation kind that is still in progress.
	ErrOperationAlreadyRunning = errors.New("operation already running")
	// ErrRotationConflict marks a concurrent incompatible bulk transition
	// on the same owner key; callers should retry the same scope.
	ErrRotationConflict = errors.New("rotation conflict")
	// ErrInvalidTransition marks an illegal skill status transition.
	ErrInvalidTransition = errors.New("invalid status transition")
)
