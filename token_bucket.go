package lintas

import (
	"sync"
	"sync/atomic"
)

// Token bucket defaults shared by all partitions.
const (
	DefaultTokenBucketCapacity = 500
	defaultRetryCost           = 5
	defaultTimeoutRetryCost    = 10
	defaultSuccessRefill       = 1
)

// TokenBucket gates retry attempts with a shared capacity pool. Every retry
// draws tokens; successes pay a small refill back. When the pool cannot fund
// a retry the attempt loop stops instead of hammering a struggling service.
// All operations in the same retry partition share one bucket; acquisition
// is lock-free and safe for concurrent use.
type TokenBucket struct {
	tokens           int64
	capacity         int64
	retryCost        int64
	timeoutRetryCost int64
	successRefill    int64
}

// NewTokenBucket creates a bucket filled to the given capacity.
// capacity <= 0 selects the default of 500.
func NewTokenBucket(capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = DefaultTokenBucketCapacity
	}
	return &TokenBucket{
		tokens:           int64(capacity),
		capacity:         int64(capacity),
		retryCost:        defaultRetryCost,
		timeoutRetryCost: defaultTimeoutRetryCost,
		successRefill:    defaultSuccessRefill,
	}
}

// UnlimitedTokenBucket returns a bucket whose retries cost nothing, for
// callers that want attempt-budget-only retry behavior.
func UnlimitedTokenBucket() *TokenBucket {
	b := NewTokenBucket(DefaultTokenBucketCapacity)
	b.retryCost = 0
	b.timeoutRetryCost = 0
	b.successRefill = 0
	return b
}

// Tokens returns the current token count.
func (b *TokenBucket) Tokens() int64 { return atomic.LoadInt64(&b.tokens) }

// Acquire draws the cost of one retry from the bucket. timeout selects the
// higher timeout-retry cost. It returns a token handle to later Release or
// Forget, or false when the bucket cannot fund the retry.
func (b *TokenBucket) Acquire(timeout bool) (*RetryToken, bool) {
	cost := b.retryCost
	if timeout {
		cost = b.timeoutRetryCost
	}
	if cost == 0 {
		return &RetryToken{bucket: b}, true
	}
	for {
		current := atomic.LoadInt64(&b.tokens)
		if current < cost {
			return nil, false
		}
		if atomic.CompareAndSwapInt64(&b.tokens, current, current-cost) {
			return &RetryToken{bucket: b, cost: cost}, true
		}
	}
}

// RecordSuccess refills the bucket by the success reward, never above
// capacity. Called once per successful attempt whether or not a token was
// held.
func (b *TokenBucket) RecordSuccess() {
	b.refill(b.successRefill)
}

func (b *TokenBucket) refill(amount int64) {
	if amount <= 0 {
		return
	}
	for {
		current := atomic.LoadInt64(&b.tokens)
		next := current + amount
		if next > b.capacity {
			next = b.capacity
		}
		if next == current {
			return
		}
		if atomic.CompareAndSwapInt64(&b.tokens, current, next) {
			return
		}
	}
}

// RetryToken is a non-zero-cost handle drawn from a TokenBucket for one
// retry attempt. Exactly one of Release or Forget must be called.
type RetryToken struct {
	bucket *TokenBucket
	cost   int64
	done   bool
}

// Release returns the held cost to the bucket. Called when the retry it paid
// for succeeded.
func (t *RetryToken) Release() {
	if t == nil || t.done {
		return
	}
	t.done = true
	t.bucket.refill(t.cost)
}

// Forget drops the token without returning its cost, permanently consuming
// capacity. Called when the retry failed or the invocation was cancelled.
func (t *RetryToken) Forget() {
	if t == nil {
		return
	}
	t.done = true
}

// RetryPartition names the group of operations sharing a token bucket.
type RetryPartition string

// DefaultRetryPartition is used when a client does not configure one.
const DefaultRetryPartition RetryPartition = "default"

// TokenBucketRegistry hands out the shared bucket for each retry partition,
// creating buckets on first use. Safe for concurrent use.
type TokenBucketRegistry struct {
	mu       sync.RWMutex
	buckets  map[RetryPartition]*TokenBucket
	capacity int
}

// NewTokenBucketRegistry creates a registry whose buckets start at the given
// capacity.
func NewTokenBucketRegistry(capacity int) *TokenBucketRegistry {
	return &TokenBucketRegistry{
		buckets:  make(map[RetryPartition]*TokenBucket),
		capacity: capacity,
	}
}

// Get returns the bucket for the partition, creating it if needed.
func (r *TokenBucketRegistry) Get(p RetryPartition) *TokenBucket {
	if p == "" {
		p = DefaultRetryPartition
	}
	r.mu.RLock()
	b, ok := r.buckets[p]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[p]; ok {
		return b
	}
	b = NewTokenBucket(r.capacity)
	r.buckets[p] = b
	return b
}
