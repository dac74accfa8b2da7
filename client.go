package lintas

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Client executes operations against a service: it serializes input, runs
// the interceptor pipeline, resolves endpoint and auth, transmits with
// timeouts and retries, and deserializes the response.
type Client struct {
	components     *RuntimeComponents
	clientPlugins  []RuntimePlugin
	pluginLayers   []*Layer
	timeouts       TimeoutConfig
	minThroughput  MinimumThroughput
	retryPartition RetryPartition
	retryMode      RetryMode
	region         string

	maxAttempts           int
	identityRefreshBuffer time.Duration
	stalePolicy           StaleIdentityPolicy

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	validationError error
}

var (
	defaultBucketRegistry = NewTokenBucketRegistry(DefaultTokenBucketCapacity)

	defaultRateLimitersMu sync.Mutex
	defaultRateLimiters   = make(map[RetryPartition]*ClientRateLimiter)
)

func sharedRateLimiter(p RetryPartition, clock Clock) *ClientRateLimiter {
	defaultRateLimitersMu.Lock()
	defer defaultRateLimitersMu.Unlock()
	if rl, ok := defaultRateLimiters[p]; ok {
		return rl
	}
	rl := NewClientRateLimiter(clock)
	defaultRateLimiters[p] = rl
	return rl
}

// New creates a Client with the given options. Configuration problems are
// recorded rather than returned; check IsValid or ValidationError, or let
// the first Invoke surface them.
func New(options ...Option) *Client {
	c := &Client{
		components: &RuntimeComponents{
			Clock:   SystemClock{},
			Sleeper: SystemSleeper{},
			AuthSchemes: map[AuthSchemeID]*AuthScheme{
				AuthSchemeAnonymous: AnonymousAuthScheme(),
			},
			AuthSchemeResolver: &StaticAuthSchemeResolver{
				Schemes: []AuthSchemeID{AuthSchemeAnonymous},
			},
		},
		retryPartition: DefaultRetryPartition,
		debug:          DefaultDebugConfig(),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.components.HTTPClient == nil {
		c.components.HTTPClient = NewDefaultHTTPClient(c.timeouts.transportOptions())
	}
	if c.components.RetryStrategy == nil {
		attempts := c.maxAttempts
		if attempts == 0 {
			attempts = defaultMaxAttempts
		}
		c.components.RetryStrategy = NewStandardRetryStrategy(attempts)
	}
	if c.components.TokenBucket == nil {
		c.components.TokenBucket = defaultBucketRegistry.Get(c.retryPartition)
	}
	if c.retryMode == RetryModeAdaptive && c.components.RateLimiter == nil {
		c.components.RateLimiter = sharedRateLimiter(c.retryPartition, c.components.Clock)
	}
	if c.components.IdentityCache == nil {
		c.components.IdentityCache = NewIdentityCache(IdentityCacheConfig{
			RefreshBuffer: c.identityRefreshBuffer,
			StalePolicy:   c.stalePolicy,
			Clock:         c.components.Clock,
			Logger:        c.logger,
		})
	}
	if c.metrics != nil {
		c.components.IdentityCache.setMetrics(c.metrics)
	}
	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		c.logger = NewSimpleLogger()
	}

	for _, p := range c.clientPlugins {
		layer := NewLayer(p.Name())
		p.Apply(layer, c.components)
		c.pluginLayers = append(c.pluginLayers, layer)
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// Components returns the client's runtime components, mainly for
// inspection in tests and plugins.
func (c *Client) Components() *RuntimeComponents {
	return c.components
}

// Execute invokes op and returns its output as O. It is a typed veneer
// over Client.Invoke.
func Execute[I, O any](ctx context.Context, c *Client, op *Operation, input I) (O, error) {
	var zero O
	out, err := c.Invoke(ctx, op, input)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(O)
	if !ok {
		return zero, &OperationError{
			Kind:        ErrorKindModeled,
			ServiceID:   op.ServiceID,
			OperationID: op.OperationID,
			Message:     fmt.Sprintf("deserializer produced %T, want %T", out, zero),
		}
	}
	return typed, nil
}
