package lintas

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// AuthSchemeID names a signing protocol. Every resolved id must map to a
// registered scheme carrying both a signer and an identity resolver.
type AuthSchemeID string

// Auth scheme ids the runtime knows out of the box. Generated clients may
// register additional ones.
const (
	AuthSchemeAnonymous AuthSchemeID = "noAuth"
	AuthSchemeSigV4     AuthSchemeID = "sigv4"
	AuthSchemeBearer    AuthSchemeID = "httpBearerAuth"
	AuthSchemeAPIKey    AuthSchemeID = "httpApiKeyAuth"
)

// Signer attaches signing material to a request, in headers or query
// parameters. The signer mutates the request in place.
type Signer interface {
	SignRequest(ctx context.Context, req *http.Request, identity *Identity, schemeConfig interface{}, components *RuntimeComponents, cfg *ConfigBag) error
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, req *http.Request, identity *Identity, schemeConfig interface{}, components *RuntimeComponents, cfg *ConfigBag) error

// SignRequest implements Signer.
func (f SignerFunc) SignRequest(ctx context.Context, req *http.Request, identity *Identity, schemeConfig interface{}, components *RuntimeComponents, cfg *ConfigBag) error {
	return f(ctx, req, identity, schemeConfig, components, cfg)
}

// AuthScheme bundles a scheme id with its signer and identity resolver.
type AuthScheme struct {
	ID               AuthSchemeID
	Signer           Signer
	IdentityResolver IdentityResolver
}

// AuthParameters carries the inputs an auth scheme resolver may consult.
type AuthParameters struct {
	ServiceID   string
	OperationID string
}

// AuthSchemeResolver returns candidate scheme ids in preference order. The
// first candidate with a registered signer and a resolvable identity wins.
type AuthSchemeResolver interface {
	ResolveAuthSchemes(ctx context.Context, params AuthParameters, cfg *ConfigBag) ([]AuthSchemeID, error)
}

// AuthSchemeResolverFunc adapts a function to the AuthSchemeResolver
// interface.
type AuthSchemeResolverFunc func(ctx context.Context, params AuthParameters, cfg *ConfigBag) ([]AuthSchemeID, error)

// ResolveAuthSchemes implements AuthSchemeResolver.
func (f AuthSchemeResolverFunc) ResolveAuthSchemes(ctx context.Context, params AuthParameters, cfg *ConfigBag) ([]AuthSchemeID, error) {
	return f(ctx, params, cfg)
}

// StaticAuthSchemeResolver always returns the same candidate list.
type StaticAuthSchemeResolver struct {
	Schemes []AuthSchemeID
}

// ResolveAuthSchemes implements AuthSchemeResolver.
func (r *StaticAuthSchemeResolver) ResolveAuthSchemes(context.Context, AuthParameters, *ConfigBag) ([]AuthSchemeID, error) {
	return r.Schemes, nil
}

// AnonymousAuthScheme returns the no-op scheme used by unauthenticated
// operations: a signer that leaves the request untouched and an identity
// resolver producing an empty, never-expiring identity.
func AnonymousAuthScheme() *AuthScheme {
	return &AuthScheme{
		ID: AuthSchemeAnonymous,
		Signer: SignerFunc(func(context.Context, *http.Request, *Identity, interface{}, *RuntimeComponents, *ConfigBag) error {
			return nil
		}),
		IdentityResolver: IdentityResolverFunc(func(context.Context, *ConfigBag) (*Identity, error) {
			return &Identity{}, nil
		}),
	}
}

// SelectedAuthScheme records, in the config bag, which scheme signed the
// current attempt so interceptors can observe it.
type SelectedAuthScheme struct {
	ID AuthSchemeID
}

// SigningTime is the instant signers should use when computing signatures.
// The orchestrator stores it per attempt, adjusted by the estimated clock
// skew.
type SigningTime struct {
	Time time.Time
}

// resolveAuth walks the resolver's candidate list and returns the first
// scheme with a registered signer and a resolvable identity. Candidates
// whose identity resolver reports ErrIdentityNotApplicable are skipped;
// other identity failures end the walk.
func resolveAuth(ctx context.Context, rc *RuntimeComponents, params AuthParameters, cfg *ConfigBag) (*AuthScheme, *Identity, error) {
	candidates, err := rc.AuthSchemeResolver.ResolveAuthSchemes(ctx, params, cfg)
	if err != nil {
		return nil, nil, err
	}

	var lastErr error
	for _, id := range candidates {
		scheme, ok := rc.AuthSchemes[id]
		if !ok || scheme.Signer == nil || scheme.IdentityResolver == nil {
			continue
		}
		identity, err := rc.IdentityCache.Resolve(ctx, id, scheme.IdentityResolver, cfg)
		if err != nil {
			if errors.Is(err, ErrIdentityNotApplicable) {
				continue
			}
			lastErr = err
			break
		}
		return scheme, identity, nil
	}
	if lastErr != nil {
		return nil, nil, lastErr
	}
	return nil, nil, ErrNoAuthScheme
}
