package lintas

import (
	"math"
	"sync"
	"time"
)

// Adaptive rate limiting constants. BETA is how far the send rate scales
// back after a throttle; SCALE_CONSTANT controls how aggressively the cubic
// curve recovers afterwards.
const (
	rateLimiterMinFillRate   = 0.5
	rateLimiterMinCapacity   = 1.0
	rateLimiterSmooth        = 0.8
	rateLimiterBeta          = 0.7
	rateLimiterScaleConstant = 0.4

	rateLimiterInitialCost      = 1.0
	rateLimiterRetryCost        = 5.0
	rateLimiterRetryTimeoutCost = 10.0
)

// requestReason tells the rate limiter what kind of send is asking for
// permission, which determines its token cost.
type requestReason int

const (
	reasonInitialRequest requestReason = iota
	reasonRetry
	reasonRetryTimeout
)

// ClientRateLimiter implements adaptive retry's client-side send pacing: a
// token bucket whose fill rate tracks the measured request rate and scales
// with a cubic curve. It stays disabled, admitting everything, until the
// first throttling response. Shared per retry partition; safe for
// concurrent use.
type ClientRateLimiter struct {
	mu sync.Mutex

	clock Clock

	fillRate        float64
	maxCapacity     float64
	currentCapacity float64
	lastTimestamp   float64
	hasTimestamp    bool
	enabled         bool

	measuredTxRate   float64
	lastTxRateBucket float64
	requestCount     uint64
	lastMaxRate      float64
	lastThrottleTime float64
}

// NewClientRateLimiter creates a limiter using the given clock.
func NewClientRateLimiter(clock Clock) *ClientRateLimiter {
	if clock == nil {
		clock = SystemClock{}
	}
	now := clockSeconds(clock)
	return &ClientRateLimiter{
		clock:            clock,
		fillRate:         rateLimiterMinFillRate,
		lastTxRateBucket: math.Floor(now),
		lastThrottleTime: now,
	}
}

func clockSeconds(c Clock) float64 {
	t := c.Now()
	return float64(t.UnixNano()) / float64(time.Second)
}

// AcquirePermission asks to send a request now. The returned duration is how
// long the caller must delay the send; zero means go immediately. Until the
// first throttle is seen the limiter admits everything.
func (l *ClientRateLimiter) AcquirePermission(reason requestReason) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return 0
	}

	amount := rateLimiterInitialCost
	switch reason {
	case reasonRetry:
		amount = rateLimiterRetryCost
	case reasonRetryTimeout:
		amount = rateLimiterRetryTimeoutCost
	}

	now := clockSeconds(l.clock)
	l.refill(now)

	var delay time.Duration
	if amount > l.currentCapacity {
		delay = time.Duration((amount - l.currentCapacity) / l.fillRate * float64(time.Second))
	}
	l.currentCapacity -= amount
	return delay
}

// Update feeds one attempt outcome back into the limiter, adjusting the fill
// rate with the cubic throttle/success curves.
func (l *ClientRateLimiter) Update(isThrottlingError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := clockSeconds(l.clock)
	l.updateMeasuredRate(now)

	var calculatedRate float64
	if isThrottlingError {
		rateToUse := l.measuredTxRate
		if l.enabled {
			rateToUse = math.Min(l.measuredTxRate, l.fillRate)
		}
		l.lastMaxRate = rateToUse
		l.lastThrottleTime = now
		calculatedRate = rateToUse * rateLimiterBeta
		l.enabled = true
	} else {
		calculatedRate = l.cubicSuccess(now)
	}

	newRate := math.Min(calculatedRate, 2.0*l.measuredTxRate)
	l.updateFillRate(now, newRate)
}

func (l *ClientRateLimiter) refill(now float64) {
	if l.hasTimestamp {
		fillAmount := (now - l.lastTimestamp) * l.fillRate
		l.currentCapacity = math.Min(l.maxCapacity, l.currentCapacity+fillAmount)
	}
	l.lastTimestamp = now
	l.hasTimestamp = true
}

func (l *ClientRateLimiter) updateFillRate(now, newRate float64) {
	// Refill at the old rate before switching to the new one.
	l.refill(now)

	l.fillRate = math.Max(newRate, rateLimiterMinFillRate)
	l.maxCapacity = math.Max(newRate, rateLimiterMinCapacity)
	l.currentCapacity = math.Min(l.currentCapacity, l.maxCapacity)
}

// updateMeasuredRate tracks request throughput in half-second buckets,
// smoothing with an exponential moving average.
func (l *ClientRateLimiter) updateMeasuredRate(now float64) {
	nextBucket := math.Floor(now*2.0) / 2.0
	l.requestCount++
	if nextBucket > l.lastTxRateBucket {
		currentRate := float64(l.requestCount) / (nextBucket - l.lastTxRateBucket)
		l.measuredTxRate = currentRate*rateLimiterSmooth + l.measuredTxRate*(1.0-rateLimiterSmooth)
		l.requestCount = 0
		l.lastTxRateBucket = nextBucket
	}
}

func (l *ClientRateLimiter) timeWindow() float64 {
	base := (l.lastMaxRate * (1.0 - rateLimiterBeta)) / rateLimiterScaleConstant
	return math.Cbrt(base)
}

func (l *ClientRateLimiter) cubicSuccess(now float64) float64 {
	dt := now - l.lastThrottleTime - l.timeWindow()
	return rateLimiterScaleConstant*math.Pow(dt, 3) + l.lastMaxRate
}

// Enabled reports whether throttling feedback has switched pacing on.
func (l *ClientRateLimiter) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}
