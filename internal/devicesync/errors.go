package devicesync

import (
	"errors"
	"fmt"
)

// Sentinel errors. Check with errors.Is; they are usually wrapped in one of
// the typed errors below.
var (
	// ErrUnknownDevice is returned when a mutation names a device that is not
	// in the current view.
	ErrUnknownDevice = errors.New("devicesync: unknown device")

	// ErrEmptyBatch is returned for a batch with no ids or a blank id.
	ErrEmptyBatch = errors.New("devicesync: empty batch")

	// ErrBlankID is returned when a device, scene or routine id is blank.
	ErrBlankID = errors.New("devicesync: blank id")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("devicesync: closed")

	// ErrPollerRunning is returned by a second Start.
	ErrPollerRunning = errors.New("devicesync: poller already running")

	// ErrSyncUnsupported is returned by SyncBackend when the source cannot
	// re-import devices.
	ErrSyncUnsupported = errors.New("devicesync: backend sync not supported")
)

// NetworkError is a transport failure or a non-auth HTTP error status.
// It is transient: polls retry on the next tick, mutations are rolled back.
type NetworkError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError means the backend refused the credential (401/403) or the
// session no longer hands one out. It is routed to the OnAuthError hook.
type AuthError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: unauthorised (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: unauthorised: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// MutationError is returned to the caller of a failed mutation. By the time
// it is returned the optimistic write has been rolled back and the pending
// entries cleared.
type MutationError struct {
	Op         string
	MutationID string
	IDs        []string
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %v failed (mutation %s): %v", e.Op, e.IDs, e.MutationID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// ValidationError is returned before any write or network call.
type ValidationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
