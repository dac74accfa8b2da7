package lintas

import (
	"context"
	"net/http"
)

// Phase names the fixed hook points the orchestrator visits, in the order
// they occur within an invocation.
type Phase int

const (
	PhaseReadBeforeExecution Phase = iota
	PhaseReadBeforeSerialization
	PhaseReadAfterSerialization
	PhaseReadBeforeAttempt
	PhaseModifyBeforeSigning
	PhaseReadAfterSigning
	PhaseModifyBeforeTransmit
	PhaseReadAfterTransmit
	PhaseModifyBeforeDeserialization
	PhaseReadBeforeDeserialization
	PhaseReadAfterDeserialization
	PhaseReadAfterAttempt
	PhaseReadAfterExecution
)

var phaseNames = map[Phase]string{
	PhaseReadBeforeExecution:         "ReadBeforeExecution",
	PhaseReadBeforeSerialization:     "ReadBeforeSerialization",
	PhaseReadAfterSerialization:      "ReadAfterSerialization",
	PhaseReadBeforeAttempt:           "ReadBeforeAttempt",
	PhaseModifyBeforeSigning:         "ModifyBeforeSigning",
	PhaseReadAfterSigning:            "ReadAfterSigning",
	PhaseModifyBeforeTransmit:        "ModifyBeforeTransmit",
	PhaseReadAfterTransmit:           "ReadAfterTransmit",
	PhaseModifyBeforeDeserialization: "ModifyBeforeDeserialization",
	PhaseReadBeforeDeserialization:   "ReadBeforeDeserialization",
	PhaseReadAfterDeserialization:    "ReadAfterDeserialization",
	PhaseReadAfterAttempt:            "ReadAfterAttempt",
	PhaseReadAfterExecution:          "ReadAfterExecution",
}

// String returns the phase's canonical name.
func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return "Unknown"
}

// InterceptorContext is the transient view interceptors receive. Which
// fields are populated depends on the phase: Input from the start, Request
// after serialization, Response after transmit, Output or Err after
// deserialization.
type InterceptorContext struct {
	Input    interface{}
	Request  *http.Request
	Response *http.Response
	Output   interface{}
	Err      error
}

// Interceptor hooks into fixed points of an invocation. Read hooks must not
// mutate the request or response; modify hooks may. All hooks may store into
// the config bag. Implementations embed NoOpInterceptor so unimplemented
// phases stay inert, and must be safe for use by concurrent invocations.
type Interceptor interface {
	// Name identifies the interceptor in diagnostics.
	Name() string

	ReadBeforeExecution(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadBeforeSerialization(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadAfterSerialization(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadBeforeAttempt(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ModifyBeforeSigning(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadAfterSigning(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ModifyBeforeTransmit(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadAfterTransmit(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ModifyBeforeDeserialization(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadBeforeDeserialization(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadAfterDeserialization(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadAfterAttempt(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
	ReadAfterExecution(ctx context.Context, ictx *InterceptorContext, cfg *ConfigBag) error
}

// NoOpInterceptor implements every phase as a no-op. Embed it and override
// the phases you care about.
type NoOpInterceptor struct{}

// Name returns a placeholder; embedders should override it.
func (NoOpInterceptor) Name() string { return "anonymous" }

func (NoOpInterceptor) ReadBeforeExecution(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadBeforeSerialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadAfterSerialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadBeforeAttempt(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ModifyBeforeSigning(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadAfterSigning(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ModifyBeforeTransmit(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadAfterTransmit(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ModifyBeforeDeserialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadBeforeDeserialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadAfterDeserialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadAfterAttempt(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}
func (NoOpInterceptor) ReadAfterExecution(context.Context, *InterceptorContext, *ConfigBag) error {
	return nil
}

func phaseHook(p Phase) func(Interceptor, context.Context, *InterceptorContext, *ConfigBag) error {
	switch p {
	case PhaseReadBeforeExecution:
		return Interceptor.ReadBeforeExecution
	case PhaseReadBeforeSerialization:
		return Interceptor.ReadBeforeSerialization
	case PhaseReadAfterSerialization:
		return Interceptor.ReadAfterSerialization
	case PhaseReadBeforeAttempt:
		return Interceptor.ReadBeforeAttempt
	case PhaseModifyBeforeSigning:
		return Interceptor.ModifyBeforeSigning
	case PhaseReadAfterSigning:
		return Interceptor.ReadAfterSigning
	case PhaseModifyBeforeTransmit:
		return Interceptor.ModifyBeforeTransmit
	case PhaseReadAfterTransmit:
		return Interceptor.ReadAfterTransmit
	case PhaseModifyBeforeDeserialization:
		return Interceptor.ModifyBeforeDeserialization
	case PhaseReadBeforeDeserialization:
		return Interceptor.ReadBeforeDeserialization
	case PhaseReadAfterDeserialization:
		return Interceptor.ReadAfterDeserialization
	case PhaseReadAfterAttempt:
		return Interceptor.ReadAfterAttempt
	case PhaseReadAfterExecution:
		return Interceptor.ReadAfterExecution
	}
	return nil
}

// runReadPhase invokes a read hook on every interceptor in registration
// order. Failures are collected so later hooks can still clean up; the first
// failure is returned.
func runReadPhase(ctx context.Context, p Phase, interceptors []Interceptor, ictx *InterceptorContext, cfg *ConfigBag) error {
	hook := phaseHook(p)
	var first error
	for _, i := range interceptors {
		if err := hook(i, ctx, ictx, cfg); err != nil && first == nil {
			first = &OperationError{
				Kind:    ErrorKindInterceptor,
				Message: "interceptor " + i.Name() + " failed in " + p.String(),
				Cause:   err,
			}
		}
	}
	return first
}

// runModifyPhase invokes a modify hook on every interceptor in registration
// order, aborting on the first failure.
func runModifyPhase(ctx context.Context, p Phase, interceptors []Interceptor, ictx *InterceptorContext, cfg *ConfigBag) error {
	hook := phaseHook(p)
	for _, i := range interceptors {
		if err := hook(i, ctx, ictx, cfg); err != nil {
			return &OperationError{
				Kind:    ErrorKindInterceptor,
				Message: "interceptor " + i.Name() + " failed in " + p.String(),
				Cause:   err,
			}
		}
	}
	return nil
}
