package lintas

import (
	"context"
	"time"
)

// TimeoutConfig collects the four timers that can bound an attempt. A zero
// duration disables that timer.
type TimeoutConfig struct {
	// Connect bounds TCP and TLS establishment; handed to the transport.
	Connect time.Duration
	// Read bounds the wait for response headers on an established
	// connection; handed to the transport.
	Read time.Duration
	// Attempt bounds a single attempt end to end: connect, send, and full
	// read for buffered responses, or first byte for streaming ones.
	Attempt time.Duration
	// Operation bounds the entire invocation across all attempts.
	Operation time.Duration
}

// merge overlays non-zero fields of other onto the receiver.
func (tc TimeoutConfig) merge(other TimeoutConfig) TimeoutConfig {
	if other.Connect > 0 {
		tc.Connect = other.Connect
	}
	if other.Read > 0 {
		tc.Read = other.Read
	}
	if other.Attempt > 0 {
		tc.Attempt = other.Attempt
	}
	if other.Operation > 0 {
		tc.Operation = other.Operation
	}
	return tc
}

// withAttemptDeadline derives the per-attempt context. The effective
// deadline is min(attempt timeout, remaining operation time): the parent
// context already carries the operation deadline, and context.WithTimeout
// never extends a parent deadline.
func (tc TimeoutConfig) withAttemptDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if tc.Attempt <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, tc.Attempt)
}

// transportOptions returns the per-attempt deadlines the HTTP client is
// informed of.
func (tc TimeoutConfig) transportOptions() TransportOptions {
	return TransportOptions{ConnectTimeout: tc.Connect, ReadTimeout: tc.Read}
}
