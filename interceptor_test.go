package lintas

import (
	"context"
	"errors"
	"testing"
)

// traceInterceptor records every hook it sees, and can fail at one phase.
type traceInterceptor struct {
	name     string
	seen     []Phase
	failAt   Phase
	failWith error
}

func (ti *traceInterceptor) hook(p Phase) error {
	ti.seen = append(ti.seen, p)
	if ti.failWith != nil && p == ti.failAt {
		return ti.failWith
	}
	return nil
}

func (ti *traceInterceptor) Name() string { return ti.name }
func (ti *traceInterceptor) ReadBeforeExecution(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadBeforeExecution)
}
func (ti *traceInterceptor) ReadBeforeSerialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadBeforeSerialization)
}
func (ti *traceInterceptor) ReadAfterSerialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadAfterSerialization)
}
func (ti *traceInterceptor) ReadBeforeAttempt(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadBeforeAttempt)
}
func (ti *traceInterceptor) ModifyBeforeSigning(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseModifyBeforeSigning)
}
func (ti *traceInterceptor) ReadAfterSigning(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadAfterSigning)
}
func (ti *traceInterceptor) ModifyBeforeTransmit(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseModifyBeforeTransmit)
}
func (ti *traceInterceptor) ReadAfterTransmit(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadAfterTransmit)
}
func (ti *traceInterceptor) ModifyBeforeDeserialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseModifyBeforeDeserialization)
}
func (ti *traceInterceptor) ReadBeforeDeserialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadBeforeDeserialization)
}
func (ti *traceInterceptor) ReadAfterDeserialization(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadAfterDeserialization)
}
func (ti *traceInterceptor) ReadAfterAttempt(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadAfterAttempt)
}
func (ti *traceInterceptor) ReadAfterExecution(context.Context, *InterceptorContext, *ConfigBag) error {
	return ti.hook(PhaseReadAfterExecution)
}

func TestPhaseString(t *testing.T) {
	if got := PhaseReadBeforeExecution.String(); got != "ReadBeforeExecution" {
		t.Errorf("String() = %q", got)
	}
	if got := PhaseModifyBeforeTransmit.String(); got != "ModifyBeforeTransmit" {
		t.Errorf("String() = %q", got)
	}
}

func TestRunReadPhaseRunsAllAndKeepsFirstError(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &traceInterceptor{name: "a", failAt: PhaseReadAfterTransmit, failWith: errA}
	b := &traceInterceptor{name: "b", failAt: PhaseReadAfterTransmit, failWith: errB}
	c := &traceInterceptor{name: "c"}

	ictx := &InterceptorContext{}
	bag := NewConfigBag()
	err := runReadPhase(context.Background(), PhaseReadAfterTransmit, []Interceptor{a, b, c}, ictx, bag)

	if err == nil {
		t.Fatal("expected error from read phase")
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Kind != ErrorKindInterceptor {
		t.Fatalf("read phase error = %v, want interceptor kind", err)
	}
	if !errors.Is(err, errA) {
		t.Errorf("read phase kept %v, want first error %v", err, errA)
	}
	// Later interceptors still run after an earlier failure.
	if len(c.seen) != 1 {
		t.Errorf("third interceptor ran %d times, want 1", len(c.seen))
	}
}

func TestRunModifyPhaseAbortsOnFirstError(t *testing.T) {
	boom := errors.New("veto")
	a := &traceInterceptor{name: "a", failAt: PhaseModifyBeforeSigning, failWith: boom}
	b := &traceInterceptor{name: "b"}

	ictx := &InterceptorContext{}
	bag := NewConfigBag()
	err := runModifyPhase(context.Background(), PhaseModifyBeforeSigning, []Interceptor{a, b}, ictx, bag)

	if !errors.Is(err, boom) {
		t.Fatalf("modify phase error = %v, want %v", err, boom)
	}
	if len(b.seen) != 0 {
		t.Errorf("interceptor after the failure still ran")
	}
}

func TestRunPhasesInRegistrationOrder(t *testing.T) {
	var order []string
	mk := func(name string) Interceptor {
		return &orderedInterceptor{NoOpInterceptor: NoOpInterceptor{}, name: name, order: &order}
	}
	ictx := &InterceptorContext{}
	bag := NewConfigBag()
	if err := runReadPhase(context.Background(), PhaseReadBeforeExecution, []Interceptor{mk("first"), mk("second"), mk("third")}, ictx, bag); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("invocation order = %v", order)
	}
}

type orderedInterceptor struct {
	NoOpInterceptor
	name  string
	order *[]string
}

func (o *orderedInterceptor) Name() string { return o.name }

func (o *orderedInterceptor) ReadBeforeExecution(context.Context, *InterceptorContext, *ConfigBag) error {
	*o.order = append(*o.order, o.name)
	return nil
}

func TestNoOpInterceptorSatisfiesInterface(t *testing.T) {
	var i Interceptor = NoOpInterceptor{}
	if err := i.ReadBeforeExecution(context.Background(), &InterceptorContext{}, NewConfigBag()); err != nil {
		t.Errorf("NoOp hook returned %v", err)
	}
}
