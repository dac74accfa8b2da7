package lintas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Endpoint is a resolved destination: a URL whose path acts as a prefix for
// the serialized request path, headers to append, and per-auth-scheme
// configuration overrides declared by the endpoint.
type Endpoint struct {
	URL              string
	Headers          http.Header
	AuthSchemeConfig map[AuthSchemeID]interface{}
}

// EndpointParameters carries the inputs an endpoint resolver may consult.
type EndpointParameters struct {
	ServiceID   string
	OperationID string
	Region      string
	Extras      map[string]interface{}
}

// EndpointResolver computes the endpoint for one attempt.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, params EndpointParameters, cfg *ConfigBag) (Endpoint, error)
}

// EndpointResolverFunc adapts a function to the EndpointResolver interface.
type EndpointResolverFunc func(ctx context.Context, params EndpointParameters, cfg *ConfigBag) (Endpoint, error)

// ResolveEndpoint implements EndpointResolver.
func (f EndpointResolverFunc) ResolveEndpoint(ctx context.Context, params EndpointParameters, cfg *ConfigBag) (Endpoint, error) {
	return f(ctx, params, cfg)
}

// StaticEndpointResolver always resolves to one URL.
type StaticEndpointResolver struct {
	Endpoint Endpoint
}

// NewStaticEndpointResolver builds a resolver pinned to the given URL.
func NewStaticEndpointResolver(rawURL string) *StaticEndpointResolver {
	return &StaticEndpointResolver{Endpoint: Endpoint{URL: rawURL}}
}

// ResolveEndpoint implements EndpointResolver.
func (r *StaticEndpointResolver) ResolveEndpoint(context.Context, EndpointParameters, *ConfigBag) (Endpoint, error) {
	return r.Endpoint, nil
}

// serializedPath is the request's escaped path as the serializer produced
// it, before any endpoint prefix. The orchestrator records it once per
// invocation so endpoint application stays idempotent across attempts.
type serializedPath struct {
	escaped string
}

// applyEndpoint rewrites the request to target the resolved endpoint. The
// endpoint's scheme and authority replace the request's; a non-empty
// endpoint path becomes a prefix of the serialized request path joined with
// a single slash. Already percent-encoded segments are carried through
// untouched. Endpoint-declared headers override request headers of the same
// name. basePath is the pre-endpoint escaped path the prefix merges
// against; merging against the request's current path would stack the
// prefix on every retry.
func applyEndpoint(req *http.Request, ep *Endpoint, basePath string) error {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return fmt.Errorf("invalid endpoint url %q: %w", ep.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint url %q must be absolute", ep.URL)
	}

	merged := mergeEscapedPaths(u.EscapedPath(), basePath)

	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	req.Host = u.Host
	if err := setEscapedPath(req.URL, merged); err != nil {
		return err
	}

	for name, values := range ep.Headers {
		req.Header.Del(name)
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return nil
}

// mergeEscapedPaths joins an endpoint path prefix and a request path with
// exactly one slash between them, operating on escaped forms so encoded
// segments are never re-encoded.
func mergeEscapedPaths(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == "" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}

// setEscapedPath stores an escaped path on the URL, keeping Path and
// RawPath consistent so EscapedPath round-trips.
func setEscapedPath(u *url.URL, escaped string) error {
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return fmt.Errorf("invalid merged path %q: %w", escaped, err)
	}
	u.Path = unescaped
	if unescaped == escaped {
		u.RawPath = ""
	} else {
		u.RawPath = escaped
	}
	return nil
}
