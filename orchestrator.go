package lintas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	invocationIDHeader = "amz-sdk-invocation-id"
	attemptHeader      = "amz-sdk-request"
	dateHeader         = "Date"

	// Date headers have second granularity; smaller differences are noise,
	// not skew.
	minClockSkew = time.Second
)

// ClockSkew is the estimated difference between the service clock and the
// local clock, recorded in the config bag from the first response of an
// invocation whose Date header disagrees with local time by at least a
// second. Signers should add it to local time before computing signatures.
type ClockSkew struct {
	Skew time.Duration
}

// Invoke runs one operation end to end: plugins, interceptor pipeline,
// serialization, the attempt loop with endpoint resolution, auth, signing,
// transmit, deserialization, and retries. All failures come back as a
// *OperationError.
func (c *Client) Invoke(ctx context.Context, op *Operation, input interface{}) (interface{}, error) {
	if c.validationError != nil {
		return nil, &OperationError{
			Kind:    ErrorKindConstruction,
			Message: "client configuration is invalid",
			Cause:   c.validationError,
		}
	}
	if err := op.validate(); err != nil {
		return nil, &OperationError{
			Kind:    ErrorKindConstruction,
			Message: "operation is invalid",
			Cause:   err,
		}
	}

	rc := c.components.clone()
	bag := NewConfigBag()
	for _, layer := range c.pluginLayers {
		bag.AddLayer(layer)
	}
	applyPlugins(bag, rc, op.Plugins)
	if err := rc.validate(); err != nil {
		return nil, &OperationError{
			Kind:        ErrorKindConstruction,
			ServiceID:   op.ServiceID,
			OperationID: op.OperationID,
			Message:     "runtime components are incomplete",
			Cause:       err,
		}
	}

	invID := c.newInvocationID()
	clock := rc.Clock
	start := clock.Now()

	if c.metrics != nil {
		c.metrics.RecordInvocationStart(op.ServiceID, op.OperationID)
	}

	opCtx := ctx
	cancel := func() {}
	if c.timeouts.Operation > 0 {
		opCtx, cancel = context.WithTimeout(ctx, c.timeouts.Operation)
	}
	defer cancel()

	ictx := &InterceptorContext{Input: input}
	out, err := c.run(opCtx, op, rc, bag, ictx, invID)

	// The execution-scoped read hook observes the final result and runs
	// even when the invocation failed early.
	ictx.Output, ictx.Err = out, err
	if phaseErr := runReadPhase(opCtx, PhaseReadAfterExecution, rc.Interceptors, ictx, bag); phaseErr != nil {
		c.enrich(phaseErr, op, rc, invID, 0)
		if err == nil {
			out, err = nil, phaseErr
		} else if c.logger != nil {
			c.logger.Warn("post-execution hook failed after invocation error", "error", phaseErr.Error())
		}
	}

	duration := clock.Now().Sub(start)
	status := "success"
	if err != nil {
		kind := errorKindOf(err)
		status = string(kind)
		var oe *OperationError
		if errors.As(err, &oe) {
			if oe.Timestamp.IsZero() {
				oe.Timestamp = clock.Now()
			}
			oe.Duration = duration
		}
		if c.metrics != nil {
			c.metrics.RecordError(kind, op.ServiceID, op.OperationID)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordInvocationEnd(op.ServiceID, op.OperationID)
		c.metrics.RecordInvocation(op.ServiceID, op.OperationID, status, duration)
	}
	return out, err
}

func (c *Client) newInvocationID() string {
	if c.debug != nil && c.debug.InvocationIDGen != nil {
		return c.debug.InvocationIDGen()
	}
	return uuid.NewString()
}

// run serializes the input and drives the attempt loop.
func (c *Client) run(ctx context.Context, op *Operation, rc *RuntimeComponents, bag *ConfigBag, ictx *InterceptorContext, invID string) (interface{}, error) {
	interceptors := rc.Interceptors
	strategy := rc.RetryStrategy
	maxAttempts := strategy.MaxAttempts()

	if err := runReadPhase(ctx, PhaseReadBeforeExecution, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, 0)
	}
	if err := runReadPhase(ctx, PhaseReadBeforeSerialization, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, 0)
	}

	req, err := op.Serializer.SerializeInput(ctx, ictx.Input, bag)
	if err != nil {
		return nil, &OperationError{
			Kind:         ErrorKindConstruction,
			ServiceID:    op.ServiceID,
			OperationID:  op.OperationID,
			InvocationID: invID,
			Message:      "input serialization failed",
			Cause:        err,
		}
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get(invocationIDHeader) == "" {
		req.Header.Set(invocationIDHeader, invID)
	}
	ictx.Request = req

	if err := runReadPhase(ctx, PhaseReadAfterSerialization, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, 0)
	}
	StorePut(bag, serializedPath{escaped: req.URL.EscapedPath()})
	bag.Freeze("serialized")

	bucket := rc.TokenBucket
	var heldToken *RetryToken
	var prevKind ErrorKind
	attempt := 1

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if heldToken != nil {
				heldToken.Forget()
			}
			kind := ErrorKindDispatch
			msg := "invocation cancelled"
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				kind = ErrorKindTimeout
				msg = "operation timeout elapsed"
			}
			return nil, c.opError(op, invID, attempt, maxAttempts, kind, msg, ctxErr)
		}
		if !strategy.ShouldAttempt(attempt) {
			return nil, c.opError(op, invID, attempt, maxAttempts, ErrorKindRetryExhausted, "attempt budget does not permit any attempt", nil)
		}

		ictx.Response, ictx.Output, ictx.Err = nil, nil, nil
		out, attemptErr := c.attempt(ctx, op, rc, bag, ictx, invID, attempt, prevKind)
		ictx.Output, ictx.Err = out, attemptErr

		if attemptErr == nil {
			if heldToken != nil {
				heldToken.Release()
				heldToken = nil
			}
			bucket.RecordSuccess()
			if rc.RateLimiter != nil {
				rc.RateLimiter.Update(false)
			}
			c.recordBucketTokens(bucket)
			if perr := runReadPhase(ctx, PhaseReadAfterAttempt, interceptors, ictx, bag); perr != nil {
				return nil, c.enrich(perr, op, rc, invID, attempt)
			}
			return out, nil
		}
		prevKind = errorKindOf(attemptErr)

		action := strategy.Classify(ictx.Request, ictx.Response, attemptErr)
		wantsRetry := action.Kind == ActionRetryable || action.Kind == ActionRetryAfter
		if rc.RateLimiter != nil && ictx.Response != nil {
			rc.RateLimiter.Update(wantsRetry && action.ErrorKind == RetryKindThrottling)
		}
		if heldToken != nil {
			heldToken.Forget()
			heldToken = nil
		}

		if wantsRetry && !isReplayable(ictx.Request) {
			c.debugLog(c.debug != nil && c.debug.LogRetries, "retryable failure but body is not replayable, giving up",
				"operation", op.OperationID, "attempt", attempt)
			action = RetryAction{Kind: ActionNonRetryable}
			wantsRetry = false
		}

		if perr := runReadPhase(ctx, PhaseReadAfterAttempt, interceptors, ictx, bag); perr != nil {
			return nil, c.enrich(perr, op, rc, invID, attempt)
		}

		if !wantsRetry {
			return nil, attemptErr
		}
		if !strategy.ShouldAttempt(attempt + 1) {
			exhausted := c.opError(op, invID, attempt, maxAttempts, ErrorKindRetryExhausted, "attempt budget exhausted", attemptErr)
			if oe := asOperationError(attemptErr); oe != nil {
				exhausted.StatusCode = oe.StatusCode
				exhausted.RequestID = oe.RequestID
			}
			return nil, exhausted
		}

		token, ok := bucket.Acquire(prevKind == ErrorKindTimeout)
		if !ok {
			c.recordBucketTokens(bucket)
			return nil, c.opError(op, invID, attempt, maxAttempts, ErrorKindRetryExhausted, "retry capacity exhausted", errors.Join(ErrNoCapacity, attemptErr))
		}
		heldToken = token
		c.recordBucketTokens(bucket)

		delay := action.Delay
		if action.Kind == ActionRetryable {
			delay = strategy.Backoff(action.ErrorKind, attempt)
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(op.ServiceID, op.OperationID, attempt)
		}
		c.debugLog(c.debug != nil && c.debug.LogRetries, "retrying after failure",
			"operation", op.OperationID, "attempt", attempt, "delay", delay.String(), "class", action.ErrorKind.String(), "error", attemptErr.Error())

		if serr := rc.Sleeper.Sleep(ctx, delay); serr != nil {
			heldToken.Forget()
			kind := ErrorKindDispatch
			if errors.Is(serr, context.DeadlineExceeded) {
				kind = ErrorKindTimeout
			}
			return nil, c.opError(op, invID, attempt, maxAttempts, kind, "cancelled while waiting to retry", serr)
		}
		if rerr := rewindBody(ictx.Request); rerr != nil {
			heldToken.Forget()
			return nil, c.opError(op, invID, attempt, maxAttempts, ErrorKindConstruction, "rewinding request body failed", rerr)
		}
		attempt++
	}
}

// attempt performs one try: endpoint, auth, signing, transmit, and
// deserialization, with the per-attempt interceptor hooks in between.
func (c *Client) attempt(ctx context.Context, op *Operation, rc *RuntimeComponents, bag *ConfigBag, ictx *InterceptorContext, invID string, attempt int, prevKind ErrorKind) (interface{}, error) {
	interceptors := rc.Interceptors
	maxAttempts := rc.RetryStrategy.MaxAttempts()
	fail := func(kind ErrorKind, msg string, cause error) *OperationError {
		return c.opError(op, invID, attempt, maxAttempts, kind, msg, cause)
	}

	if err := runReadPhase(ctx, PhaseReadBeforeAttempt, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, attempt)
	}

	req := ictx.Request
	req.Header.Set(attemptHeader, fmt.Sprintf("attempt=%d; max=%d", attempt, maxAttempts))

	endpoint, err := rc.EndpointResolver.ResolveEndpoint(ctx, EndpointParameters{
		ServiceID:   op.ServiceID,
		OperationID: op.OperationID,
		Region:      c.region,
	}, bag)
	if err != nil {
		return nil, fail(ErrorKindEndpoint, "endpoint resolution failed", err)
	}
	basePath := LoadOr(bag, serializedPath{escaped: req.URL.EscapedPath()}).escaped
	if err := applyEndpoint(req, &endpoint, basePath); err != nil {
		return nil, fail(ErrorKindEndpoint, "applying endpoint failed", err)
	}
	c.debugLog(c.debug != nil && c.debug.LogEndpoint, "endpoint resolved",
		"operation", op.OperationID, "url", req.URL.String())

	scheme, identity, err := resolveAuth(ctx, rc, AuthParameters{
		ServiceID:   op.ServiceID,
		OperationID: op.OperationID,
	}, bag)
	if err != nil {
		return nil, fail(ErrorKindAuth, "auth scheme resolution failed", err)
	}
	StorePut(bag, SelectedAuthScheme{ID: scheme.ID})

	skew := LoadOr(bag, ClockSkew{}).Skew
	StorePut(bag, SigningTime{Time: rc.Clock.Now().Add(skew)})

	if err := runModifyPhase(ctx, PhaseModifyBeforeSigning, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, attempt)
	}
	var schemeConfig interface{}
	if endpoint.AuthSchemeConfig != nil {
		schemeConfig = endpoint.AuthSchemeConfig[scheme.ID]
	}
	if err := scheme.Signer.SignRequest(ctx, req, identity, schemeConfig, rc, bag); err != nil {
		return nil, fail(ErrorKindAuth, "request signing failed", err)
	}
	c.debugLog(c.debug != nil && c.debug.LogAuth, "request signed",
		"operation", op.OperationID, "scheme", string(scheme.ID))

	if err := runReadPhase(ctx, PhaseReadAfterSigning, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, attempt)
	}
	if err := runModifyPhase(ctx, PhaseModifyBeforeTransmit, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, attempt)
	}

	if rc.RateLimiter != nil {
		reason := reasonInitialRequest
		if attempt > 1 {
			reason = reasonRetry
			if prevKind == ErrorKindTimeout {
				reason = reasonRetryTimeout
			}
		}
		if delay := rc.RateLimiter.AcquirePermission(reason); delay > 0 {
			if serr := rc.Sleeper.Sleep(ctx, delay); serr != nil {
				return nil, fail(ErrorKindTimeout, "cancelled while rate limited", serr)
			}
		}
	}

	attemptCtx, cancel := c.timeouts.withAttemptDeadline(ctx)
	sendReq := req.WithContext(attemptCtx)
	if c.minThroughput.enabled() && c.minThroughput.guardsUpload() && sendReq.Body != nil && sendReq.Body != http.NoBody {
		sendReq.Body = newMinimumThroughputBody(sendReq.Body, rc.Clock, c.minThroughput)
	}

	if c.metrics != nil {
		c.metrics.RecordAttempt(op.ServiceID, op.OperationID)
	}
	c.debugLog(c.debug != nil && c.debug.LogTransport, "sending request",
		"operation", op.OperationID, "method", req.Method, "attempt", attempt)

	resp, derr := rc.HTTPClient.Do(sendReq, c.timeouts.transportOptions())
	if derr != nil {
		cancel()
		kind := c.classifyTransportError(derr, attemptCtx)
		if kind == ErrorKindThroughput && c.metrics != nil {
			c.metrics.RecordThroughputViolation(op.ServiceID, op.OperationID, "upload")
		}
		return nil, fail(kind, "request dispatch failed", derr)
	}
	ictx.Response = resp

	// Estimate clock skew once per invocation, from the first response
	// that carries a Date header. Later attempts sign with local time
	// adjusted by this estimate.
	if _, recorded := Load[ClockSkew](bag); !recorded {
		if serverTime, perr := http.ParseTime(resp.Header.Get(dateHeader)); perr == nil {
			skew := serverTime.Sub(rc.Clock.Now())
			if skew >= minClockSkew || skew <= -minClockSkew {
				StorePut(bag, ClockSkew{Skew: skew})
				if c.metrics != nil {
					c.metrics.RecordClockSkew(op.ServiceID, skew)
				}
			}
		}
	}

	// A hook failure after transmit abandons the response, so the body has
	// to be closed here to release the connection.
	discard := func() {
		if resp.Body != nil {
			resp.Body.Close()
		}
		cancel()
	}

	if err := runReadPhase(ctx, PhaseReadAfterTransmit, interceptors, ictx, bag); err != nil {
		discard()
		return nil, c.enrich(err, op, rc, invID, attempt)
	}

	if c.minThroughput.enabled() && c.minThroughput.guardsDownload() && resp.Body != nil && resp.Body != http.NoBody {
		resp.Body = newMinimumThroughputBody(resp.Body, rc.Clock, c.minThroughput)
	}

	if err := runModifyPhase(ctx, PhaseModifyBeforeDeserialization, interceptors, ictx, bag); err != nil {
		discard()
		return nil, c.enrich(err, op, rc, invID, attempt)
	}
	if err := runReadPhase(ctx, PhaseReadBeforeDeserialization, interceptors, ictx, bag); err != nil {
		discard()
		return nil, c.enrich(err, op, rc, invID, attempt)
	}

	md := extractResponseMetadata(resp)
	c.debugLog(c.debug != nil && c.debug.LogTransport, "response received",
		"operation", op.OperationID, "status", resp.StatusCode, "requestID", md.RequestID)

	if streaming, ok := op.Deserializer.(StreamingDeserializer); ok && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// The live body is handed to the output; per-attempt resources
		// are released when the caller closes it.
		resp.Body = &closeNotifyBody{ReadCloser: resp.Body, fn: cancel}
		out, serr := streaming.DeserializeStreaming(resp)
		if serr != nil {
			resp.Body.Close()
			return nil, fail(ErrorKindModeled, "streaming deserialization failed", serr)
		}
		attachMetadata(out, md)
		if err := runReadPhase(ctx, PhaseReadAfterDeserialization, interceptors, ictx, bag); err != nil {
			return nil, c.enrich(err, op, rc, invID, attempt)
		}
		return out, nil
	}

	berr := bufferResponseBody(resp)
	cancel()
	if berr != nil {
		kind := c.classifyTransportError(berr, attemptCtx)
		if kind == ErrorKindThroughput && c.metrics != nil {
			c.metrics.RecordThroughputViolation(op.ServiceID, op.OperationID, "download")
		}
		return nil, fail(kind, "reading response body failed", berr)
	}

	out, dzErr := op.Deserializer.DeserializeResponse(resp)
	if dzErr != nil {
		attachMetadata(dzErr, md)
		oe := fail(ErrorKindModeled, "operation failed", dzErr)
		oe.StatusCode = resp.StatusCode
		oe.RequestID = md.RequestID
		ictx.Err = oe
		if perr := runReadPhase(ctx, PhaseReadAfterDeserialization, interceptors, ictx, bag); perr != nil {
			return nil, c.enrich(perr, op, rc, invID, attempt)
		}
		return nil, oe
	}
	attachMetadata(out, md)
	ictx.Output = out
	if err := runReadPhase(ctx, PhaseReadAfterDeserialization, interceptors, ictx, bag); err != nil {
		return nil, c.enrich(err, op, rc, invID, attempt)
	}
	return out, nil
}

func (c *Client) opError(op *Operation, invID string, attempt, maxAttempts int, kind ErrorKind, msg string, cause error) *OperationError {
	return &OperationError{
		Kind:         kind,
		Message:      msg,
		Cause:        cause,
		ServiceID:    op.ServiceID,
		OperationID:  op.OperationID,
		InvocationID: invID,
		Attempt:      attempt,
		MaxAttempts:  maxAttempts,
	}
}

// enrich fills invocation context into interceptor-produced errors, which
// are built without it.
func (c *Client) enrich(err error, op *Operation, rc *RuntimeComponents, invID string, attempt int) error {
	var oe *OperationError
	if errors.As(err, &oe) {
		if oe.ServiceID == "" {
			oe.ServiceID = op.ServiceID
		}
		if oe.OperationID == "" {
			oe.OperationID = op.OperationID
		}
		if oe.InvocationID == "" {
			oe.InvocationID = invID
		}
		if oe.Attempt == 0 {
			oe.Attempt = attempt
		}
		if oe.MaxAttempts == 0 {
			oe.MaxAttempts = rc.RetryStrategy.MaxAttempts()
		}
	}
	return err
}

func (c *Client) classifyTransportError(err error, attemptCtx context.Context) ErrorKind {
	var te *ThroughputError
	if errors.As(err, &te) {
		return ErrorKindThroughput
	}
	if errorsIsTimeout(err, attemptCtx) {
		return ErrorKindTimeout
	}
	return ErrorKindDispatch
}

func errorsIsTimeout(err error, attemptCtx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if attemptCtx != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) recordBucketTokens(b *TokenBucket) {
	if c.metrics != nil && b != nil {
		c.metrics.RecordTokenBucketTokens(string(c.retryPartition), b.Tokens())
	}
}

func (c *Client) debugLog(enabled bool, msg string, keysAndValues ...interface{}) {
	if c.logger == nil || c.debug == nil || !c.debug.Enabled || !enabled {
		return
	}
	c.logger.Debug(msg, keysAndValues...)
}

func errorKindOf(err error) ErrorKind {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ErrorKindDispatch
}

func asOperationError(err error) *OperationError {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe
	}
	return nil
}
