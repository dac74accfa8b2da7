package lintas

import (
	"testing"
	"time"
)

func TestOptionsApply(t *testing.T) {
	bucket := NewTokenBucket(50)
	clock := NewManualClock(time.Unix(1700000000, 0))
	strategy := NewStandardRetryStrategy(5)

	c := New(
		WithStaticEndpoint("https://api.example.com"),
		WithClock(clock),
		WithRetryStrategy(strategy),
		WithTokenBucket(bucket),
		WithRetryPartition("payments"),
		WithRegion("eu-west-1"),
		WithConnectTimeout(time.Second),
		WithReadTimeout(2*time.Second),
		WithAttemptTimeout(5*time.Second),
		WithOperationTimeout(30*time.Second),
		WithMinimumThroughput(1024, time.Second),
		WithThroughputDirection(ThroughputDownload),
	)

	if !c.IsValid() {
		t.Fatalf("validation failed: %v", c.ValidationError())
	}
	if c.components.Clock != Clock(clock) {
		t.Error("clock not applied")
	}
	if c.components.RetryStrategy != RetryStrategy(strategy) {
		t.Error("retry strategy not applied")
	}
	if c.components.TokenBucket != bucket {
		t.Error("token bucket not applied")
	}
	if c.retryPartition != "payments" || c.region != "eu-west-1" {
		t.Errorf("partition/region = %q/%q", c.retryPartition, c.region)
	}
	if c.timeouts.Connect != time.Second || c.timeouts.Operation != 30*time.Second {
		t.Errorf("timeouts = %+v", c.timeouts)
	}
	if c.minThroughput.Bytes != 1024 || c.minThroughput.Direction != ThroughputDownload {
		t.Errorf("throughput = %+v", c.minThroughput)
	}
}

func TestNewFillsDefaults(t *testing.T) {
	c := New(WithStaticEndpoint("https://api.example.com"))

	if c.components.HTTPClient == nil {
		t.Error("no default http client")
	}
	if c.components.Clock == nil || c.components.Sleeper == nil {
		t.Error("no default clock or sleeper")
	}
	if c.components.RetryStrategy == nil || c.components.RetryStrategy.MaxAttempts() != 3 {
		t.Error("default retry strategy missing or wrong budget")
	}
	if c.components.TokenBucket == nil {
		t.Error("no default token bucket")
	}
	if c.components.IdentityCache == nil {
		t.Error("no default identity cache")
	}
	if c.components.RateLimiter != nil {
		t.Error("adaptive limiter created in standard mode")
	}
	// Anonymous auth is usable out of the box.
	if _, ok := c.components.AuthSchemes[AuthSchemeAnonymous]; !ok {
		t.Error("anonymous auth scheme not registered")
	}
}

func TestNewAdaptiveModeSharesLimiterPerPartition(t *testing.T) {
	a := New(WithStaticEndpoint("https://a.example.com"), WithRetryMode(RetryModeAdaptive), WithRetryPartition("shared-part"))
	b := New(WithStaticEndpoint("https://b.example.com"), WithRetryMode(RetryModeAdaptive), WithRetryPartition("shared-part"))
	other := New(WithStaticEndpoint("https://c.example.com"), WithRetryMode(RetryModeAdaptive), WithRetryPartition("other-part"))

	if a.components.RateLimiter == nil {
		t.Fatal("adaptive mode did not create a rate limiter")
	}
	if a.components.RateLimiter != b.components.RateLimiter {
		t.Error("same partition got different limiters")
	}
	if a.components.RateLimiter == other.components.RateLimiter {
		t.Error("different partitions share a limiter")
	}
}

func TestDefaultBucketSharedAcrossClients(t *testing.T) {
	a := New(WithStaticEndpoint("https://a.example.com"), WithRetryPartition("bucket-share-test"))
	b := New(WithStaticEndpoint("https://b.example.com"), WithRetryPartition("bucket-share-test"))
	if a.components.TokenBucket != b.components.TokenBucket {
		t.Error("clients in one partition got different token buckets")
	}
}

func TestWithMaxAttemptsShapesDefaultStrategy(t *testing.T) {
	c := New(WithStaticEndpoint("https://api.example.com"), WithMaxAttempts(7))
	if got := c.components.RetryStrategy.MaxAttempts(); got != 7 {
		t.Errorf("MaxAttempts = %d, want 7", got)
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		valid   bool
	}{
		{"default", nil, true},
		{"negative attempt timeout", []Option{WithAttemptTimeout(-time.Second)}, false},
		{"attempt exceeds operation", []Option{WithAttemptTimeout(time.Minute), WithOperationTimeout(time.Second)}, false},
		{"throughput without duration", []Option{WithMinimumThroughput(100, 0)}, false},
		{"negative refresh buffer", []Option{WithIdentityRefreshBuffer(-time.Second)}, false},
		{"complete config", []Option{WithAttemptTimeout(time.Second), WithOperationTimeout(time.Minute), WithMinimumThroughput(100, time.Second)}, true},
	}
	for _, tt := range tests {
		opts := append([]Option{WithStaticEndpoint("https://api.example.com")}, tt.options...)
		c := New(opts...)
		if got := c.IsValid(); got != tt.valid {
			t.Errorf("%s: IsValid = %v, want %v (err: %v)", tt.name, got, tt.valid, c.ValidationError())
		}
	}
}

func TestWithDebugEnablesLogging(t *testing.T) {
	c := New(WithStaticEndpoint("https://api.example.com"), WithDebug())
	if !c.debug.Enabled {
		t.Error("debug not enabled")
	}
	if c.logger == nil {
		t.Error("debug mode without a logger")
	}
}

func TestWithInvocationIDGenerator(t *testing.T) {
	c := New(
		WithStaticEndpoint("https://api.example.com"),
		WithInvocationIDGenerator(func() string { return "fixed-id" }),
	)
	if got := c.newInvocationID(); got != "fixed-id" {
		t.Errorf("invocation id = %q", got)
	}

	// Without a generator, ids are unique.
	d := New(WithStaticEndpoint("https://api.example.com"))
	if d.newInvocationID() == d.newInvocationID() {
		t.Error("default invocation ids repeat")
	}
}
