package queue

import "errors"

var (
	// ErrJobNotFound is returned when a job id has no record in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrLockTimeout is returned when the store lock cannot be acquired
	// within the configured retry budget
	ErrLockTimeout = errors.New("could not acquire queue store lock")

	// ErrInvalidTransition is returned when an update would move a job
	// backward along its lifecycle
	ErrInvalidTransition = errors.New("invalid status transition")
)
