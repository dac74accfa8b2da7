package lintas

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/lintas/internal/backoff"
)

// RetryErrorKind classifies why a failed attempt may be retried.
type RetryErrorKind int

const (
	// RetryKindThrottling means the service asked the client to slow down.
	RetryKindThrottling RetryErrorKind = iota
	// RetryKindTransient covers connection drops, timeouts, and 5xx-class
	// hiccups expected to clear quickly.
	RetryKindTransient
	// RetryKindServer is a server error without a stronger signal.
	RetryKindServer
	// RetryKindClient marks client errors, which are not retried.
	RetryKindClient
)

// String returns a short name for the kind.
func (k RetryErrorKind) String() string {
	switch k {
	case RetryKindThrottling:
		return "Throttling"
	case RetryKindTransient:
		return "Transient"
	case RetryKindServer:
		return "ServerError"
	case RetryKindClient:
		return "ClientError"
	}
	return "Unknown"
}

// RetryableError is implemented by modeled errors that carry a retry hint
// from the service model.
type RetryableError interface {
	RetryableErrorKind() (RetryErrorKind, bool)
}

// CodedError is implemented by modeled errors exposing a service error code,
// checked against the throttling and transient catalogs.
type CodedError interface {
	ErrorCode() string
}

// RetryActionKind is the verdict of classifying one attempt.
type RetryActionKind int

const (
	// ActionSuccess ends the attempt loop with the response.
	ActionSuccess RetryActionKind = iota
	// ActionRetryAfter retries after an explicit server-provided delay.
	ActionRetryAfter
	// ActionRetryable retries with computed backoff.
	ActionRetryable
	// ActionNonRetryable ends the loop with the failure.
	ActionNonRetryable
)

// RetryAction is a classification verdict plus its parameters.
type RetryAction struct {
	Kind      RetryActionKind
	Delay     time.Duration
	ErrorKind RetryErrorKind
}

// RetryStrategy decides whether an attempt may start and how its outcome is
// classified. Implementations are shared across invocations and must be
// safe for concurrent use.
type RetryStrategy interface {
	// ShouldAttempt reports whether attempt number n (1-based) is within
	// the budget.
	ShouldAttempt(n int) bool
	// MaxAttempts returns the attempt budget.
	MaxAttempts() int
	// Classify inspects the outcome of one attempt. err is the attempt's
	// failure, modeled or otherwise; it is nil on success.
	Classify(req *http.Request, resp *http.Response, err error) RetryAction
	// Backoff computes the delay before the given retry attempt when the
	// server supplied no explicit hint.
	Backoff(kind RetryErrorKind, attempt int) time.Duration
}

// Service error codes treated as throttling.
var throttlingErrorCodes = map[string]struct{}{
	"Throttling":                             {},
	"ThrottlingException":                    {},
	"ThrottledException":                     {},
	"RequestThrottledException":              {},
	"TooManyRequestsException":               {},
	"ProvisionedThroughputExceededException": {},
	"TransactionInProgressException":         {},
	"RequestLimitExceeded":                   {},
	"BandwidthLimitExceeded":                 {},
	"LimitExceededException":                 {},
	"RequestThrottled":                       {},
	"SlowDown":                               {},
	"PriorRequestNotComplete":                {},
	"EC2ThrottledException":                  {},
}

// Service error codes cataloged as transient.
var transientErrorCodes = map[string]struct{}{
	"RequestTimeout":          {},
	"RequestTimeoutException": {},
	"IDPCommunicationError":   {},
}

// HTTP status codes classed as transient.
var transientStatusCodes = map[int]struct{}{
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
	http.StatusRequestTimeout:      {},
}

const (
	defaultMaxAttempts        = 3
	defaultInitialBackoff     = 100 * time.Millisecond
	defaultThrottlingBackoff  = 500 * time.Millisecond
	defaultMaxBackoff         = 20 * time.Second
	defaultBackoffJitter      = 1.0
	maxRetryAfterHint         = time.Hour
	retryAfterHeader          = "Retry-After"
	amzRetryAfterMillisHeader = "x-amz-retry-after"
)

// StandardRetryStrategy classifies attempts by, in priority order: explicit
// server retry hints, modeled retry annotations, the service error code
// catalogs, and finally the HTTP status catalog. Backoff is exponential with
// full jitter; throttling gets a larger base.
type StandardRetryStrategy struct {
	maxAttempts       int
	initialBackoff    time.Duration
	throttlingBackoff time.Duration
	maxBackoff        time.Duration
	jitter            float64
	calc              *internalbackoff.Calculator
}

// NewStandardRetryStrategy creates a strategy with the given attempt budget
// and default backoff parameters. maxAttempts <= 0 selects the default of 3.
func NewStandardRetryStrategy(maxAttempts int) *StandardRetryStrategy {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &StandardRetryStrategy{
		maxAttempts:       maxAttempts,
		initialBackoff:    defaultInitialBackoff,
		throttlingBackoff: defaultThrottlingBackoff,
		maxBackoff:        defaultMaxBackoff,
		jitter:            defaultBackoffJitter,
		calc:              internalbackoff.NewExponentialJitterCalculator(),
	}
}

// WithBackoff overrides the backoff bases, cap, and jitter factor.
func (s *StandardRetryStrategy) WithBackoff(initial, throttling, max time.Duration, jitter float64) *StandardRetryStrategy {
	if initial > 0 {
		s.initialBackoff = initial
	}
	if throttling > 0 {
		s.throttlingBackoff = throttling
	}
	if max > 0 {
		s.maxBackoff = max
	}
	if jitter >= 0 {
		s.jitter = jitter
	}
	return s
}

// WithBackoffStrategy swaps the delay calculator, e.g. for decorrelated
// jitter.
func (s *StandardRetryStrategy) WithBackoffStrategy(strategy internalbackoff.Strategy) *StandardRetryStrategy {
	s.calc = internalbackoff.NewCalculator(strategy)
	return s
}

// ShouldAttempt implements RetryStrategy.
func (s *StandardRetryStrategy) ShouldAttempt(n int) bool { return n <= s.maxAttempts }

// MaxAttempts implements RetryStrategy.
func (s *StandardRetryStrategy) MaxAttempts() int { return s.maxAttempts }

// Classify implements RetryStrategy.
func (s *StandardRetryStrategy) Classify(req *http.Request, resp *http.Response, err error) RetryAction {
	if err == nil {
		return RetryAction{Kind: ActionSuccess}
	}

	// 1. Explicit server hint wins over everything else.
	if resp != nil {
		if delay, ok := parseRetryHint(resp.Header); ok {
			return RetryAction{Kind: ActionRetryAfter, Delay: delay, ErrorKind: RetryKindThrottling}
		}
	}

	// 2. Modeled retry annotation.
	var retryable RetryableError
	if errors.As(err, &retryable) {
		if kind, ok := retryable.RetryableErrorKind(); ok {
			if kind == RetryKindClient {
				return RetryAction{Kind: ActionNonRetryable}
			}
			return RetryAction{Kind: ActionRetryable, ErrorKind: kind}
		}
	}

	// 3. Service error code catalogs.
	var coded CodedError
	if errors.As(err, &coded) {
		code := coded.ErrorCode()
		if _, ok := throttlingErrorCodes[code]; ok {
			return RetryAction{Kind: ActionRetryable, ErrorKind: RetryKindThrottling}
		}
		if _, ok := transientErrorCodes[code]; ok {
			return RetryAction{Kind: ActionRetryable, ErrorKind: RetryKindTransient}
		}
	}

	// Transport failures with no response: timeouts and dispatch errors are
	// transient.
	if resp == nil {
		var opErr *OperationError
		if errors.As(err, &opErr) {
			switch opErr.Kind {
			case ErrorKindTimeout, ErrorKindDispatch, ErrorKindThroughput:
				return RetryAction{Kind: ActionRetryable, ErrorKind: RetryKindTransient}
			}
			return RetryAction{Kind: ActionNonRetryable}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return RetryAction{Kind: ActionRetryable, ErrorKind: RetryKindTransient}
		}
		return RetryAction{Kind: ActionRetryable, ErrorKind: RetryKindTransient}
	}

	// 4. HTTP status catalog.
	if resp.StatusCode == http.StatusTooManyRequests {
		return RetryAction{Kind: ActionRetryable, ErrorKind: RetryKindThrottling}
	}
	if _, ok := transientStatusCodes[resp.StatusCode]; ok {
		return RetryAction{Kind: ActionRetryable, ErrorKind: RetryKindTransient}
	}
	return RetryAction{Kind: ActionNonRetryable}
}

// Backoff implements RetryStrategy. attempt is the 1-based number of the
// attempt that just failed.
func (s *StandardRetryStrategy) Backoff(kind RetryErrorKind, attempt int) time.Duration {
	base := s.initialBackoff
	if kind == RetryKindThrottling {
		base = s.throttlingBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	return s.calc.Calculate(attempt-1, base, s.maxBackoff, 2.0, s.jitter)
}

// parseRetryHint reads an explicit retry delay from Retry-After (seconds or
// HTTP-date) or x-amz-retry-after (milliseconds). Hints are capped at one
// hour.
func parseRetryHint(h http.Header) (time.Duration, bool) {
	if v := h.Get(amzRetryAfterMillisHeader); v != "" {
		if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && ms > 0 {
			return capHint(time.Duration(ms) * time.Millisecond), true
		}
	}
	v := h.Get(retryAfterHeader)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return capHint(time.Duration(secs) * time.Second), true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return capHint(d), true
		}
	}
	return 0, false
}

func capHint(d time.Duration) time.Duration {
	if d > maxRetryAfterHint {
		return maxRetryAfterHint
	}
	return d
}
