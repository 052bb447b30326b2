package faktory

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrDeclaration matches any *DeclarationError.
	ErrDeclaration = errors.New("faktory: invalid batch declaration")

	// ErrPoolTimeout matches any *TimeoutError raised while waiting for a
	// connection to become available.
	ErrPoolTimeout = errors.New("faktory: pool checkout timed out")
)

// DeclarationError reports a malformed batch declaration. It is raised
// synchronously, before any connection is checked out, and indicates a
// programmer error at the call site: the declaration must be fixed, not
// retried.
type DeclarationError struct {
	// Reason describes what is wrong with the declaration.
	Reason string
}

func (e *DeclarationError) Error() string {
	return "faktory: invalid batch declaration: " + e.Reason
}

// Is enables errors.Is matching against ErrDeclaration.
func (e *DeclarationError) Is(target error) bool {
	return target == ErrDeclaration
}

// TimeoutError reports that no connection became available within the pool's
// wait bound. The operation was never sent: no server-side change occurred,
// and the caller may safely retry (except CreateBatch, which would create a
// new batch on every attempt).
type TimeoutError struct {
	// Pool is the derived name of the pool that was exhausted.
	Pool string

	// Wait is the configured wait bound that elapsed.
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("faktory: no connection available in pool %s after %s", e.Pool, e.Wait)
}

// Is enables errors.Is matching against ErrPoolTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrPoolTimeout
}

// ProtocolError is an error reply from the server (-ERR on the wire). The
// client propagates it verbatim and never interprets or recovers from it.
type ProtocolError struct {
	// Verb is the command that produced the error.
	Verb string

	// Message is the server-supplied error text.
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("faktory: %s: server error: %s", e.Verb, e.Message)
}
