package browser

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrHandleClosed is reported by any operation on a page, browser or
	// engine that was closed before or during the call.
	ErrHandleClosed = errors.New("browser handle closed")
	// ErrDriverTimeout marks a protocol-level timeout. Drivers wrap it; the
	// wait package turns it into a *TimeoutError.
	ErrDriverTimeout = errors.New("driver timeout")
	// ErrUnsupportedVariant is returned by engines that cannot drive a variant.
	ErrUnsupportedVariant = errors.New("unsupported browser variant")
	// ErrElementObscured is returned by a click whose target is covered by
	// another element.
	ErrElementObscured = errors.New("element is obscured by another element")
	// ErrElementNotFound is returned by drivers when a selector matches nothing.
	ErrElementNotFound = errors.New("no element matches selector")
)

// SessionInitError reports a failed engine, browser or page construction.
type SessionInitError struct {
	Unit  string
	Stage string
	Err   error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("session init failed for unit %q at %s: %v", e.Unit, e.Stage, e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// TimeoutError reports a wait condition that did not hold in time.
type TimeoutError struct {
	// Selector is empty for page-level conditions.
	Selector  string
	Condition string
	Timeout   time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("timed out after %s waiting for page %s", e.Timeout, e.Condition)
	}
	return fmt.Sprintf("timed out after %s waiting for %q to be %s", e.Timeout, e.Selector, e.Condition)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// InteractionError reports an action that failed after its last attempt. Err
// is the final underlying cause, unchanged.
type InteractionError struct {
	Action   string
	Selector string
	Attempts int
	Err      error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s on %q failed after %d attempt(s): %v", e.Action, e.Selector, e.Attempts, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }

// ElementNotFoundError reports a read whose target could not be resolved.
type ElementNotFoundError struct {
	Selector string
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found: %v", e.Selector, e.Err)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }
