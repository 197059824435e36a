package notifier

import (
	"errors"
	"fmt"

	"github.com/alertrelay/alertrelay/internal/bus"
)

var (
	// ErrNotReady is returned by Enqueue and Deliver before Init has succeeded.
	ErrNotReady = errors.New("notifier not ready")
	// ErrAlreadyInitialized is returned by a second Init call.
	ErrAlreadyInitialized = errors.New("notifier already initialized")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("notifier stopped")
	// ErrBackendMismatch is returned when an envelope addressed to one backend
	// is handed to another backend's actor.
	ErrBackendMismatch = errors.New("envelope backend mismatch")
	// ErrInit matches every *InitError.
	ErrInit = errors.New("notifier initialization failed")
	// ErrRetriesExhausted matches every *ExhaustedError.
	ErrRetriesExhausted = errors.New("max retries exceeded")
)

// InitError reports a failed Init. The actor stays uninitialized.
type InitError struct {
	Backend bus.Backend
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s notifier: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func (e *InitError) Is(target error) bool { return target == ErrInit }

// ExhaustedError is returned when every attempt allowed by a Policy failed
// with a retryable fault.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// TargetError reports a failed delivery to a single target of an envelope.
type TargetError struct {
	Backend bus.Backend
	Target  string
	Err     error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: deliver to %s: %v", e.Backend, e.Target, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }
