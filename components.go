package lintas

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// TransportOptions carries the per-attempt deadlines an HTTPClient is
// informed of.
type TransportOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// HTTPClient is the pluggable transport. Implementations are shared by many
// concurrent operations and handle their own connection management. The
// request context carries the per-attempt deadline.
type HTTPClient interface {
	Do(req *http.Request, opts TransportOptions) (*http.Response, error)
}

// HTTPClientFunc adapts a function to the HTTPClient interface.
type HTTPClientFunc func(req *http.Request, opts TransportOptions) (*http.Response, error)

// Do implements HTTPClient.
func (f HTTPClientFunc) Do(req *http.Request, opts TransportOptions) (*http.Response, error) {
	return f(req, opts)
}

// DefaultHTTPClient dispatches over net/http, translating TransportOptions
// into a dialer timeout and a response-header timeout.
type DefaultHTTPClient struct {
	client *http.Client
}

// NewDefaultHTTPClient builds a transport configured with the given
// deadlines. The zero TransportOptions yields library defaults.
func NewDefaultHTTPClient(opts TransportOptions) *DefaultHTTPClient {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 30 * time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: opts.ReadTimeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	return &DefaultHTTPClient{client: &http.Client{Transport: transport}}
}

// Do implements HTTPClient. The configured transport already reflects the
// client's deadlines; per-attempt overrides ride on the request context.
func (c *DefaultHTTPClient) Do(req *http.Request, _ TransportOptions) (*http.Response, error) {
	return c.client.Do(req)
}

// RuntimeComponents is the registry of first-class collaborators one
// invocation uses. Plugins produce deltas that are merged into it; later
// plugins override earlier ones. Nil fields in a delta leave the existing
// component in place; interceptors accumulate.
type RuntimeComponents struct {
	HTTPClient         HTTPClient
	Clock              Clock
	Sleeper            Sleeper
	RetryStrategy      RetryStrategy
	TokenBucket        *TokenBucket
	RateLimiter        *ClientRateLimiter
	IdentityCache      *IdentityCache
	AuthSchemeResolver AuthSchemeResolver
	AuthSchemes        map[AuthSchemeID]*AuthScheme
	EndpointResolver   EndpointResolver
	Interceptors       []Interceptor
}

// clone returns a shallow copy safe for per-invocation mutation. The auth
// scheme map and interceptor slice are copied; the components themselves
// stay shared.
func (rc *RuntimeComponents) clone() *RuntimeComponents {
	out := *rc
	out.AuthSchemes = make(map[AuthSchemeID]*AuthScheme, len(rc.AuthSchemes))
	for id, s := range rc.AuthSchemes {
		out.AuthSchemes[id] = s
	}
	out.Interceptors = append([]Interceptor(nil), rc.Interceptors...)
	return &out
}

// RegisterAuthScheme adds or replaces a scheme in the registry.
func (rc *RuntimeComponents) RegisterAuthScheme(s *AuthScheme) {
	if rc.AuthSchemes == nil {
		rc.AuthSchemes = make(map[AuthSchemeID]*AuthScheme)
	}
	rc.AuthSchemes[s.ID] = s
}

// RegisterInterceptor appends an interceptor, preserving registration
// order.
func (rc *RuntimeComponents) RegisterInterceptor(i Interceptor) {
	rc.Interceptors = append(rc.Interceptors, i)
}

// validate checks the invariants every invocation depends on, in particular
// that each registered auth scheme has both a signer and an identity
// resolver.
func (rc *RuntimeComponents) validate() error {
	if rc.HTTPClient == nil {
		return errors.New("no HTTP client configured")
	}
	if rc.Clock == nil {
		return errors.New("no clock configured")
	}
	if rc.Sleeper == nil {
		return errors.New("no sleeper configured")
	}
	if rc.RetryStrategy == nil {
		return errors.New("no retry strategy configured")
	}
	if rc.EndpointResolver == nil {
		return errors.New("no endpoint resolver configured")
	}
	if rc.AuthSchemeResolver == nil {
		return errors.New("no auth scheme resolver configured")
	}
	if rc.IdentityCache == nil {
		return errors.New("no identity cache configured")
	}
	for id, s := range rc.AuthSchemes {
		if s.Signer == nil {
			return errors.New("auth scheme " + string(id) + " has no signer")
		}
		if s.IdentityResolver == nil {
			return errors.New("auth scheme " + string(id) + " has no identity resolver")
		}
	}
	return nil
}
