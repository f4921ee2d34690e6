package container

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is the cause recorded when Cancel is called explicitly.
	ErrCancelled = errors.New("container cancelled")
	// ErrIntentDiscarded completes intents dropped by an intercepting container.
	ErrIntentDiscarded = errors.New("intent discarded")
	// ErrNotSwitchable is returned when a container cannot be substituted.
	ErrNotSwitchable = errors.New("container is not switchable")
	// ErrNilIntent is returned when a nil intent is submitted.
	ErrNilIntent = errors.New("intent must not be nil")
)

// IntentError wraps the failure of a single intent.
type IntentError struct {
	Container string
	JobID     string
	JobName   string
	Err       error
}

func (e *IntentError) Error() string {
	return fmt.Sprintf("container %s: intent %s failed: %v", e.Container, e.JobName, e.Err)
}

func (e *IntentError) Unwrap() error { return e.Err }

// PanicError carries a panic recovered from an intent.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("intent panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
