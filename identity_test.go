package lintas

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingResolver(calls *int32, identity *Identity, err error) IdentityResolver {
	return IdentityResolverFunc(func(context.Context, *ConfigBag) (*Identity, error) {
		atomic.AddInt32(calls, 1)
		if err != nil {
			return nil, err
		}
		return identity, nil
	})
}

func TestIdentityUsable(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name   string
		id     *Identity
		buffer time.Duration
		want   bool
	}{
		{"nil", nil, 0, false},
		{"no expiry", &Identity{}, time.Hour, true},
		{"fresh", &Identity{Expiration: now.Add(time.Hour)}, time.Minute, true},
		{"inside buffer", &Identity{Expiration: now.Add(30 * time.Second)}, time.Minute, false},
		{"expired", &Identity{Expiration: now.Add(-time.Second)}, 0, false},
	}
	for _, tt := range tests {
		if got := tt.id.Usable(now, tt.buffer); got != tt.want {
			t.Errorf("%s: Usable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIdentityCacheHitAvoidsResolver(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	cache := NewIdentityCache(IdentityCacheConfig{Clock: clock})

	var calls int32
	resolver := countingResolver(&calls, &Identity{Data: "creds", Expiration: clock.Now().Add(time.Hour)}, nil)

	for i := 0; i < 5; i++ {
		id, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag())
		if err != nil {
			t.Fatal(err)
		}
		if id.Data != "creds" {
			t.Fatalf("identity = %v", id.Data)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("resolver called %d times, want 1", got)
	}
}

func TestIdentityCacheRefreshesInsideBuffer(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	cache := NewIdentityCache(IdentityCacheConfig{Clock: clock, RefreshBuffer: time.Minute})

	var calls int32
	resolver := IdentityResolverFunc(func(context.Context, *ConfigBag) (*Identity, error) {
		atomic.AddInt32(&calls, 1)
		return &Identity{Data: "creds", Expiration: clock.Now().Add(2 * time.Minute)}, nil
	})

	if _, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag()); err != nil {
		t.Fatal(err)
	}
	// Move inside the refresh buffer: 90s from a 120s lifetime leaves 30s,
	// under the 60s buffer.
	clock.Advance(90 * time.Second)
	if _, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("resolver called %d times, want 2", got)
	}
}

func TestIdentityCacheStaleReusePolicy(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	cache := NewIdentityCache(IdentityCacheConfig{Clock: clock, RefreshBuffer: time.Minute})

	good := &Identity{Data: "old-creds", Expiration: clock.Now().Add(2 * time.Minute)}
	var fail atomic.Bool
	resolver := IdentityResolverFunc(func(context.Context, *ConfigBag) (*Identity, error) {
		if fail.Load() {
			return nil, errors.New("provider down")
		}
		return good, nil
	})

	if _, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag()); err != nil {
		t.Fatal(err)
	}

	fail.Store(true)
	clock.Advance(90 * time.Second)
	id, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag())
	if err != nil {
		t.Fatalf("stale reuse returned error %v", err)
	}
	if id.Data != "old-creds" {
		t.Errorf("identity = %v, want stale old-creds", id.Data)
	}
}

func TestIdentityCacheStaleFailPolicy(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	cache := NewIdentityCache(IdentityCacheConfig{
		Clock:         clock,
		RefreshBuffer: time.Minute,
		StalePolicy:   StaleIdentityFail,
	})

	boom := errors.New("provider down")
	var fail atomic.Bool
	resolver := IdentityResolverFunc(func(context.Context, *ConfigBag) (*Identity, error) {
		if fail.Load() {
			return nil, boom
		}
		return &Identity{Data: "creds", Expiration: clock.Now().Add(2 * time.Minute)}, nil
	})

	if _, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag()); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	clock.Advance(90 * time.Second)
	if _, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag()); !errors.Is(err, boom) {
		t.Errorf("error = %v, want the refresh failure", err)
	}
}

func TestIdentityCacheInvalidate(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	cache := NewIdentityCache(IdentityCacheConfig{Clock: clock})

	var calls int32
	resolver := countingResolver(&calls, &Identity{Data: "creds", Expiration: clock.Now().Add(time.Hour)}, nil)

	cache.Resolve(context.Background(), AuthSchemeBearer, resolver, NewConfigBag())
	cache.Invalidate(AuthSchemeBearer)
	cache.Resolve(context.Background(), AuthSchemeBearer, resolver, NewConfigBag())

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("resolver called %d times after invalidate, want 2", got)
	}
}

func TestIdentityCacheCoalescesConcurrentRefreshes(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	cache := NewIdentityCache(IdentityCacheConfig{Clock: clock})

	var calls int32
	release := make(chan struct{})
	resolver := IdentityResolverFunc(func(context.Context, *ConfigBag) (*Identity, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Identity{Data: "creds", Expiration: clock.Now().Add(time.Hour)}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Resolve(context.Background(), AuthSchemeSigV4, resolver, NewConfigBag()); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("resolver called %d times, want 1", got)
	}
}

func TestIdentityCacheSchemesAreIndependent(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	cache := NewIdentityCache(IdentityCacheConfig{Clock: clock})

	a, _ := cache.Resolve(context.Background(), AuthSchemeSigV4,
		staticIdentity("sigv4"), NewConfigBag())
	b, _ := cache.Resolve(context.Background(), AuthSchemeBearer,
		staticIdentity("bearer"), NewConfigBag())

	if a.Data != "sigv4" || b.Data != "bearer" {
		t.Errorf("cross-scheme mixup: %v, %v", a.Data, b.Data)
	}
}
