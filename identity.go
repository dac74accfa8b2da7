package lintas

import (
	"context"
	"sync"
	"time"

	"github.com/ambiyansyah-risyal/lintas/internal/singleflight"
)

// Identity is opaque principal material (credentials, a token) with an
// optional expiry. A zero Expiration means the identity never expires.
type Identity struct {
	Data       interface{}
	Expiration time.Time
}

// Usable reports whether the identity is still inside its validity window
// given the refresh buffer supplied by the resolver policy.
func (i *Identity) Usable(now time.Time, refreshBuffer time.Duration) bool {
	if i == nil {
		return false
	}
	if i.Expiration.IsZero() {
		return true
	}
	return now.Before(i.Expiration.Add(-refreshBuffer))
}

// IdentityResolver produces an identity for one auth scheme, possibly doing
// I/O. Resolvers that do not apply to the current request return
// ErrIdentityNotApplicable so the auth stage can try the next scheme.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, cfg *ConfigBag) (*Identity, error)
}

// IdentityResolverFunc adapts a function to the IdentityResolver interface.
type IdentityResolverFunc func(ctx context.Context, cfg *ConfigBag) (*Identity, error)

// ResolveIdentity implements IdentityResolver.
func (f IdentityResolverFunc) ResolveIdentity(ctx context.Context, cfg *ConfigBag) (*Identity, error) {
	return f(ctx, cfg)
}

// StaleIdentityPolicy decides what happens when a refresh fails while a
// stale-but-cached identity is still on hand.
type StaleIdentityPolicy int

const (
	// StaleIdentityReuse returns the stale identity and lets the server
	// decide validity. The default.
	StaleIdentityReuse StaleIdentityPolicy = iota
	// StaleIdentityFail surfaces the refresh error instead.
	StaleIdentityFail
)

const defaultIdentityRefreshBuffer = 30 * time.Second

// IdentityCacheConfig tunes an IdentityCache.
type IdentityCacheConfig struct {
	// RefreshBuffer is subtracted from expiry when judging freshness;
	// identities inside the buffer are refreshed ahead of time.
	RefreshBuffer time.Duration
	// StalePolicy governs refresh failures with a stale identity cached.
	StalePolicy StaleIdentityPolicy
	Clock       Clock
	Logger      Logger
}

// IdentityCache caches resolved identities per auth scheme. Concurrent
// refreshes of the same scheme collapse into a single in-flight resolution;
// waiters share its result. Safe for concurrent use.
type IdentityCache struct {
	mu            sync.RWMutex
	entries       map[AuthSchemeID]*Identity
	group         *singleflight.Group
	refreshBuffer time.Duration
	stalePolicy   StaleIdentityPolicy
	clock         Clock
	logger        Logger
	metrics       *MetricsCollector
}

// NewIdentityCache creates a cache with the given config. Zero-value fields
// get defaults: a 30s refresh buffer, stale reuse, and the system clock.
func NewIdentityCache(cfg IdentityCacheConfig) *IdentityCache {
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = defaultIdentityRefreshBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &IdentityCache{
		entries:       make(map[AuthSchemeID]*Identity),
		group:         singleflight.New(),
		refreshBuffer: cfg.RefreshBuffer,
		stalePolicy:   cfg.StalePolicy,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}
}

// Resolve returns a usable identity for the scheme, consulting the cache
// first and refreshing through the resolver when the cached identity is
// missing or inside its refresh buffer.
func (c *IdentityCache) Resolve(ctx context.Context, id AuthSchemeID, resolver IdentityResolver, cfg *ConfigBag) (*Identity, error) {
	now := c.clock.Now()

	c.mu.RLock()
	cached := c.entries[id]
	c.mu.RUnlock()

	if cached.Usable(now, c.refreshBuffer) {
		if c.metrics != nil {
			c.metrics.RecordIdentityCacheHit(string(id))
		}
		return cached, nil
	}
	if c.metrics != nil {
		c.metrics.RecordIdentityCacheMiss(string(id))
	}

	v, err := c.group.Do(string(id), func() (interface{}, error) {
		identity, err := resolver.ResolveIdentity(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[id] = identity
		c.mu.Unlock()
		return identity, nil
	})
	if err != nil {
		// A stale identity that has not hard-expired may still be accepted
		// by the server.
		if cached != nil && c.stalePolicy == StaleIdentityReuse {
			if c.logger != nil {
				c.logger.Warn("identity refresh failed, reusing stale identity", "scheme", id, "error", err.Error())
			}
			return cached, nil
		}
		return nil, err
	}
	return v.(*Identity), nil
}

// Invalidate drops the cached identity for a scheme.
func (c *IdentityCache) Invalidate(id AuthSchemeID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	c.group.ForgetKey(string(id))
}

func (c *IdentityCache) setMetrics(m *MetricsCollector) { c.metrics = m }
