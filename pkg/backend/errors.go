package backend

import (
	"errors"
	"fmt"

	"github.com/seqport/sracatch/pkg/accession"
)

// Sentinel errors for method selection and adapter outcomes.
var (
	// ErrUnknownMethod indicates a method name outside the closed set.
	ErrUnknownMethod = errors.New("unknown download method")

	// ErrNoMethods indicates an empty method list.
	ErrNoMethods = errors.New("no download methods specified")

	// ErrNotRegistered indicates no adapter is registered for a method.
	ErrNotRegistered = errors.New("no adapter registered for method")

	// ErrPrecondition indicates an adapter requirement was not met before
	// any external call was made (missing binary, key, credentials, or
	// project). Preconditions trigger fallback but never leave partial
	// artifacts.
	ErrPrecondition = errors.New("method precondition not met")

	// ErrExecution indicates the external mechanism was invoked and
	// failed (non-zero exit, HTTP error, checksum mismatch). Triggers
	// fallback to the next method.
	ErrExecution = errors.New("method execution failed")
)

// ErrPaymentNotAllowed is the precondition raised when a method may incur
// egress charges and the caller has not allowed payment. The adapter is
// never invoked in this case.
var ErrPaymentNotAllowed = fmt.Errorf("%w: payment required but not allowed", ErrPrecondition)

// MethodError wraps an adapter failure with its context.
type MethodError struct {
	// Op is the adapter stage that failed (e.g. "resolve", "fetch",
	// "verify").
	Op string

	// Method is the download method.
	Method Method

	// Run is the accession being fetched.
	Run accession.Run

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *MethodError) Error() string {
	if e.Run != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Op, e.Run, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MethodError) Unwrap() error {
	return e.Err
}

// IsPrecondition returns true if the error indicates an unmet adapter
// precondition (the external mechanism was never invoked).
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsExecution returns true if the error indicates a failed external
// invocation.
func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsPaymentNotAllowed returns true if the error indicates a refused paid
// method.
func IsPaymentNotAllowed(err error) bool {
	return errors.Is(err, ErrPaymentNotAllowed)
}
