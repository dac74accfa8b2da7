package lintas

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind partitions every failure an invocation can surface. Exactly one
// kind is attached to each OperationError.
type ErrorKind string

const (
	// ErrorKindConstruction covers bad input, bad config, and invalid URIs.
	// Never retried.
	ErrorKindConstruction ErrorKind = "ConstructionFailure"
	// ErrorKindDispatch is a transport-level failure with no HTTP response.
	ErrorKindDispatch ErrorKind = "Dispatch"
	// ErrorKindTimeout means an attempt, connect, read, or operation timer
	// expired.
	ErrorKindTimeout ErrorKind = "Timeout"
	// ErrorKindThroughput means the minimum-throughput body guard tripped.
	ErrorKindThroughput ErrorKind = "ThroughputBelowFloor"
	// ErrorKindAuth covers scheme resolution, identity, and signer failures.
	ErrorKindAuth ErrorKind = "Auth"
	// ErrorKindEndpoint covers endpoint resolver failures and invalid
	// endpoints.
	ErrorKindEndpoint ErrorKind = "Endpoint"
	// ErrorKindModeled wraps a deserialized service error.
	ErrorKindModeled ErrorKind = "Modeled"
	// ErrorKindInterceptor wraps an error returned by an interceptor hook.
	ErrorKindInterceptor ErrorKind = "Interceptor"
	// ErrorKindRetryExhausted means retries were permitted but the attempt
	// budget ran out; Cause carries the last underlying failure.
	ErrorKindRetryExhausted ErrorKind = "RetryExhausted"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrNoCapacity is returned when the retry token bucket cannot fund
	// another attempt.
	ErrNoCapacity = errors.New("lintas: retry token bucket has no capacity")

	// ErrNoAuthScheme is returned when no resolved auth scheme has both a
	// signer and a resolvable identity.
	ErrNoAuthScheme = errors.New("lintas: no viable auth scheme")

	// ErrBodyNotReplayable is returned when a retry would be required but
	// the request body cannot be replayed.
	ErrBodyNotReplayable = errors.New("lintas: request body is not replayable")

	// ErrIdentityNotApplicable signals that an identity resolver does not
	// apply to the current request; the auth stage skips to the next
	// candidate scheme.
	ErrIdentityNotApplicable = errors.New("lintas: identity not applicable")
)

// OperationError is the single error type every invocation failure returns
// through. Use errors.As to recover it and errors.Is against another
// OperationError to compare kinds.
type OperationError struct {
	Kind         ErrorKind
	Message      string
	Cause        error
	ServiceID    string
	OperationID  string
	InvocationID string
	Attempt      int
	MaxAttempts  int
	StatusCode   int
	RequestID    string
	Timestamp    time.Time
	Duration     time.Duration
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.ServiceID != "" || e.OperationID != "" {
		msg = fmt.Sprintf("%s.%s: %s", e.ServiceID, e.OperationID, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.InvocationID != "" {
		msg = fmt.Sprintf("[%s] %s", e.InvocationID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *OperationError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*OperationError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *OperationError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.ServiceID != "" {
		info += fmt.Sprintf("Service: %s\n", e.ServiceID)
	}
	if e.OperationID != "" {
		info += fmt.Sprintf("Operation: %s\n", e.OperationID)
	}
	if e.InvocationID != "" {
		info += fmt.Sprintf("Invocation ID: %s\n", e.InvocationID)
	}
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTransient reports whether an error represents a failure that might
// succeed on a fresh attempt: dispatch errors, timeouts, throughput floor
// violations, and modeled errors whose retry kind allows another try.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		switch opErr.Kind {
		case ErrorKindDispatch, ErrorKindTimeout, ErrorKindThroughput:
			return true
		case ErrorKindModeled:
			return IsTransient(opErr.Cause)
		default:
			return false
		}
	}
	var retryable RetryableError
	if errors.As(err, &retryable) {
		if kind, ok := retryable.RetryableErrorKind(); ok {
			return kind == RetryKindThrottling || kind == RetryKindTransient || kind == RetryKindServer
		}
	}
	return false
}
