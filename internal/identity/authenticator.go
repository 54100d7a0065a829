package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
	"github.com/giantswarm/mcp-authgate/internal/secrets"
)

// TokenResolver looks up a user's service tokens
type TokenResolver interface {
	Resolve(ctx context.Context, userID string, services []string) secrets.UserTokens
}

// TokenRefresher renews tokens that are close to expiry
type TokenRefresher interface {
	Refresh(ctx context.Context, userID string, tokens secrets.UserTokens) secrets.UserTokens
}

// Authenticator turns request headers into an AuthUser:
// extract credential, validate, resolve tokens, refresh.
type Authenticator struct {
	// Bearer validates Authorization: Bearer credentials
	Bearer Validator
	// APIKey validates x-api-key credentials
	APIKey Validator
	// Resolver looks up service tokens; nil means no tokens
	Resolver TokenResolver
	// Refresher renews expiring tokens; nil disables refresh
	Refresher TokenRefresher
	// Services is the list of services to resolve tokens for
	Services func() []string
	Logger   *logging.Logger
	// now is overridable in tests
	now func() time.Time
}

// Authenticate validates the credential in h and resolves the caller's
// tokens. Missing tokens do not fail authentication; they are reported
// later by the permission gate.
func (a *Authenticator) Authenticate(ctx context.Context, h http.Header) (*AuthUser, error) {
	cred, err := ExtractCredential(h)
	if err != nil {
		a.Logger.Warning("Authentication failed: %v", err)
		metrics.AuthAttempts.WithLabelValues(metrics.ResultDenied).Inc()
		return nil, err
	}
	log := a.Logger.WithSecrets(cred.Value)

	var v Validator
	switch cred.Kind {
	case KindBearer:
		v = a.Bearer
	case KindAPIKey:
		v = a.APIKey
	}
	if v == nil {
		metrics.AuthAttempts.WithLabelValues(metrics.ResultDenied).Inc()
		if cred.Kind == KindAPIKey {
			return nil, Unauthorized("API key authentication is not enabled", nil)
		}
		return nil, Unauthorized("Bearer token authentication is not enabled", nil)
	}

	id, err := v.Validate(ctx, cred.Value)
	if err != nil {
		log.Warning("Authentication failed: %v", err)
		metrics.AuthAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		if !IsUnauthorized(err) {
			err = Unauthorized("Token validation failed", err)
		}
		return nil, err
	}

	var tokens secrets.UserTokens
	if a.Resolver != nil && a.Services != nil {
		tokens = a.Resolver.Resolve(ctx, id.ID, a.Services())
	}
	if len(tokens) == 0 {
		log.Warning("No service tokens found for user %s", id.ID)
		tokens = secrets.UserTokens{}
	}
	if a.Refresher != nil {
		tokens = a.Refresher.Refresh(ctx, id.ID, tokens)
	}

	metrics.AuthAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info("Authentication successful for user %s (%s)", id.ID, cred.Kind)

	return &AuthUser{
		Identity:        id,
		Tokens:          tokens,
		AuthenticatedAt: a.clock(),
		Credential:      cred.Kind,
	}, nil
}

func (a *Authenticator) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}
