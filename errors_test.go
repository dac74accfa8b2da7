package lintas

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOperationErrorMessage(t *testing.T) {
	err := &OperationError{
		Kind:         ErrorKindDispatch,
		Message:      "connection refused",
		ServiceID:    "Storage",
		OperationID:  "GetItem",
		InvocationID: "inv-1",
		Attempt:      2,
		MaxAttempts:  3,
		Cause:        errors.New("dial tcp: refused"),
	}
	msg := err.Error()
	for _, want := range []string{"Storage.GetItem", "Dispatch", "connection refused", "inv-1", "attempt 2/3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestOperationErrorIsComparesKinds(t *testing.T) {
	err := &OperationError{Kind: ErrorKindTimeout, Message: "attempt deadline"}

	if !errors.Is(err, &OperationError{Kind: ErrorKindTimeout}) {
		t.Error("same-kind comparison failed")
	}
	if errors.Is(err, &OperationError{Kind: ErrorKindDispatch}) {
		t.Error("different kinds compared equal")
	}
}

func TestOperationErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &OperationError{Kind: ErrorKindAuth, Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}

	var nilErr *OperationError
	if nilErr.Unwrap() != nil {
		t.Error("nil receiver Unwrap")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dispatch", &OperationError{Kind: ErrorKindDispatch}, true},
		{"timeout", &OperationError{Kind: ErrorKindTimeout}, true},
		{"throughput", &OperationError{Kind: ErrorKindThroughput}, true},
		{"construction", &OperationError{Kind: ErrorKindConstruction}, false},
		{"auth", &OperationError{Kind: ErrorKindAuth}, false},
		{"bare deadline", context.DeadlineExceeded, true},
		{
			"modeled transient",
			&OperationError{Kind: ErrorKindModeled, Cause: &OperationError{Kind: ErrorKindTimeout}},
			true,
		},
		{
			"modeled terminal",
			&OperationError{Kind: ErrorKindModeled, Cause: errors.New("validation")},
			false,
		},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOperationErrorDebugInfo(t *testing.T) {
	err := &OperationError{
		Kind:        ErrorKindRetryExhausted,
		Message:     "budget spent",
		ServiceID:   "Storage",
		OperationID: "PutItem",
		Attempt:     3,
		MaxAttempts: 3,
		StatusCode:  503,
		RequestID:   "req-7",
	}
	info := err.DebugInfo()
	for _, want := range []string{"RetryExhausted", "PutItem", "503", "req-7"} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo missing %q:\n%s", want, info)
		}
	}
}
