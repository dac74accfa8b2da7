package lintas

import (
	"fmt"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// RetryMode selects between attempt-budget retries and adaptive client-side
// pacing.
type RetryMode int

const (
	// RetryModeStandard uses the token bucket and attempt budget only.
	RetryModeStandard RetryMode = iota
	// RetryModeAdaptive additionally paces sends with a client rate
	// limiter that reacts to throttling responses.
	RetryModeAdaptive
)

// WithHTTPClient sets the transport used for all attempts.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) {
		c.components.HTTPClient = hc
	}
}

// WithClock sets the time source.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.components.Clock = clock
	}
}

// WithSleeper sets how retry delays are waited out.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.components.Sleeper = s
	}
}

// WithRetryStrategy replaces the retry strategy outright.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(c *Client) {
		c.components.RetryStrategy = s
	}
}

// WithMaxAttempts sets the attempt budget of the default retry strategy.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithRetryMode selects standard or adaptive retries.
func WithRetryMode(m RetryMode) Option {
	return func(c *Client) {
		c.retryMode = m
	}
}

// WithRetryPartition names the group of operations this client shares retry
// capacity with.
func WithRetryPartition(p RetryPartition) Option {
	return func(c *Client) {
		c.retryPartition = p
	}
}

// WithTokenBucket overrides the shared retry token bucket.
func WithTokenBucket(b *TokenBucket) Option {
	return func(c *Client) {
		c.components.TokenBucket = b
	}
}

// WithOperationTimeout bounds an entire invocation.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.Operation = d
	}
}

// WithAttemptTimeout bounds each attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.Attempt = d
	}
}

// WithConnectTimeout bounds connection establishment.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.Connect = d
	}
}

// WithReadTimeout bounds the wait for response headers.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.Read = d
	}
}

// WithTimeouts sets all four timers at once; zero fields are left alone.
func WithTimeouts(tc TimeoutConfig) Option {
	return func(c *Client) {
		c.timeouts = c.timeouts.merge(tc)
	}
}

// WithMinimumThroughput fails streaming bodies whose sustained throughput
// drops below bytes per duration.
func WithMinimumThroughput(bytes uint64, per time.Duration) Option {
	return func(c *Client) {
		c.minThroughput.Bytes = bytes
		c.minThroughput.Per = per
	}
}

// WithThroughputDirection selects which bodies the throughput guard wraps.
func WithThroughputDirection(d ThroughputDirection) Option {
	return func(c *Client) {
		c.minThroughput.Direction = d
	}
}

// WithEndpointResolver sets the endpoint resolver.
func WithEndpointResolver(r EndpointResolver) Option {
	return func(c *Client) {
		c.components.EndpointResolver = r
	}
}

// WithStaticEndpoint pins every request to one URL.
func WithStaticEndpoint(rawURL string) Option {
	return func(c *Client) {
		c.components.EndpointResolver = NewStaticEndpointResolver(rawURL)
	}
}

// WithRegion sets the region passed to endpoint resolvers.
func WithRegion(region string) Option {
	return func(c *Client) {
		c.region = region
	}
}

// WithAuthSchemeResolver sets the auth scheme resolver.
func WithAuthSchemeResolver(r AuthSchemeResolver) Option {
	return func(c *Client) {
		c.components.AuthSchemeResolver = r
	}
}

// WithAuthScheme registers an auth scheme.
func WithAuthScheme(s *AuthScheme) Option {
	return func(c *Client) {
		c.components.RegisterAuthScheme(s)
	}
}

// WithIdentityCache overrides the identity cache.
func WithIdentityCache(cache *IdentityCache) Option {
	return func(c *Client) {
		c.components.IdentityCache = cache
	}
}

// WithIdentityRefreshBuffer refreshes identities this long before expiry.
func WithIdentityRefreshBuffer(d time.Duration) Option {
	return func(c *Client) {
		c.identityRefreshBuffer = d
	}
}

// WithStaleIdentityPolicy governs refresh failures when a stale identity is
// cached.
func WithStaleIdentityPolicy(p StaleIdentityPolicy) Option {
	return func(c *Client) {
		c.stalePolicy = p
	}
}

// WithInterceptor registers an interceptor; registration order is the
// invocation order within every phase.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) {
		c.components.RegisterInterceptor(i)
	}
}

// WithPlugin adds a client-level runtime plugin, applied once at
// construction.
func WithPlugin(p RuntimePlugin) Option {
	return func(c *Client) {
		c.clientPlugins = append(c.clientPlugins, p)
	}
}

// WithMetricsCollector enables Prometheus metrics.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = mc
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the default flags.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithInvocationIDGenerator sets a custom function for generating
// invocation ids.
func WithInvocationIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.InvocationIDGen = gen
	}
}

// ValidateConfiguration performs a best-effort check of intrinsic client
// configuration. Component completeness is checked per invocation, after
// plugins have run.
func (c *Client) ValidateConfiguration() error {
	if c.maxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative, got %d", c.maxAttempts)
	}
	if c.timeouts.Connect < 0 || c.timeouts.Read < 0 || c.timeouts.Attempt < 0 || c.timeouts.Operation < 0 {
		return fmt.Errorf("timeouts must not be negative: %+v", c.timeouts)
	}
	if c.timeouts.Attempt > 0 && c.timeouts.Operation > 0 && c.timeouts.Attempt > c.timeouts.Operation {
		return fmt.Errorf("attempt timeout %v exceeds operation timeout %v", c.timeouts.Attempt, c.timeouts.Operation)
	}
	if c.minThroughput.Bytes > 0 && c.minThroughput.Per <= 0 {
		return fmt.Errorf("minimum throughput of %d bytes needs a positive duration", c.minThroughput.Bytes)
	}
	if c.identityRefreshBuffer < 0 {
		return fmt.Errorf("identity refresh buffer must not be negative, got %v", c.identityRefreshBuffer)
	}
	return nil
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
