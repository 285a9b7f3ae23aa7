package services

import "fmt"

// Service error taxonomy. Handlers map these to HTTP statuses in one place;
// anything else is treated as an internal error.

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// InvalidStateError reports an operation attempted against a status that
// does not permit it; the current status is surfaced to the caller.
type InvalidStateError struct {
	Message       string
	CurrentStatus string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s (current status: %s)", e.Message, e.CurrentStatus)
}

// RetryLimitError reports retry exhaustion with the attempts/cap pair so the
// caller can display it.
type RetryLimitError struct {
	Attempts int
	Cap      int
}

func (e *RetryLimitError) Error() string {
	return fmt.Sprintf("retry limit exceeded: %d of %d attempts used", e.Attempts, e.Cap)
}
