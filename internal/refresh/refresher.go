// Package refresh renews service tokens that are about to expire using the
// OAuth2 refresh-token grant.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
	"github.com/giantswarm/mcp-authgate/internal/secrets"
)

// DefaultLead is how long before expiry a token is refreshed
const DefaultLead = 10 * time.Minute

// ErrNoRefreshPath is returned when a token cannot be refreshed because it
// has no refresh token or its service has no token endpoint.
var ErrNoRefreshPath = errors.New("no refresh path for token")

// Endpoint is the OAuth2 client registration used to refresh one service's tokens
type Endpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Store persists refreshed records so a rotated refresh token survives the request
type Store interface {
	Store(ctx context.Context, backend, userID, service string, rec secrets.TokenRecord) (string, error)
}

// Config configures a Refresher
type Config struct {
	// Lead is the refresh window before expiry, DefaultLead when zero
	Lead      time.Duration
	Endpoints map[string]Endpoint
	// Store receives refreshed records; nil disables write-back
	Store Store
	// StoreBackend names the backend to write to; empty means first writable
	StoreBackend string
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// Refresher renews expiring tokens. Concurrent refreshes of the same
// user and service share one token exchange.
type Refresher struct {
	lead         time.Duration
	endpoints    map[string]Endpoint
	store        Store
	storeBackend string
	httpClient   *http.Client
	logger       *logging.Logger
	group        singleflight.Group
	now          func() time.Time
}

// New creates a Refresher
func New(cfg Config) *Refresher {
	lead := cfg.Lead
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Refresher{
		lead:         lead,
		endpoints:    cfg.Endpoints,
		store:        cfg.Store,
		storeBackend: cfg.StoreBackend,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Lead returns the configured refresh window
func (r *Refresher) Lead() time.Duration { return r.lead }

// Refresh returns tokens with every record that expires within the lead
// window replaced by a freshly issued one. The input is never modified.
//
// When a refresh fails the old record is kept if it is still valid and
// dropped if it has already expired, so no returned token is ever past its
// expiry.
func (r *Refresher) Refresh(ctx context.Context, userID string, tokens secrets.UserTokens) secrets.UserTokens {
	now := r.now()
	result := tokens

	for _, svc := range tokens.Services() {
		rec := tokens[svc]
		if !rec.ExpiresWithin(r.lead, now) {
			continue
		}

		fresh, err := r.RefreshService(ctx, userID, svc, rec)
		if err == nil {
			result = result.With(svc, fresh)
			continue
		}

		if rec.Expired(now) {
			r.logger.Warning("Dropping expired %s token for user %s: %v", svc, userID, err)
			result = result.Without(svc)
			continue
		}
		r.logger.Warning("Keeping %s token for user %s until %s: %v", svc, userID, rec.Expiry.Format(time.RFC3339), err)
	}
	return result
}

// RefreshService exchanges rec's refresh token for a new record and writes
// the result back to the secret store.
func (r *Refresher) RefreshService(ctx context.Context, userID, service string, rec secrets.TokenRecord) (secrets.TokenRecord, error) {
	ep, ok := r.endpoints[service]
	if !ok || ep.TokenURL == "" || rec.RefreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultSkipped).Inc()
		return secrets.TokenRecord{}, fmt.Errorf("%s: %w", service, ErrNoRefreshPath)
	}

	v, err, _ := r.group.Do(userID+"|"+service, func() (interface{}, error) {
		fresh, err := r.exchange(ctx, ep, rec)
		if err != nil {
			return nil, err
		}
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultSuccess).Inc()
		r.logger.Info("Refreshed %s token for user %s", service, userID)
		r.persist(ctx, userID, service, fresh)
		return fresh, nil
	})
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultFailure).Inc()
		return secrets.TokenRecord{}, fmt.Errorf("failed to refresh %s token: %w", service, err)
	}
	return v.(secrets.TokenRecord), nil
}

// persist writes a refreshed record back; failures are logged, not returned
func (r *Refresher) persist(ctx context.Context, userID, service string, fresh secrets.TokenRecord) {
	if r.store == nil {
		return
	}
	backend, err := r.store.Store(ctx, r.storeBackend, userID, service, fresh)
	if err != nil {
		r.logger.Warning("Failed to persist refreshed %s token for user %s: %v", service, userID, err)
		return
	}
	r.logger.Debug("Persisted refreshed %s token for user %s to %s", service, userID, backend)
}

func (r *Refresher) exchange(ctx context.Context, ep Endpoint, rec secrets.TokenRecord) (secrets.TokenRecord, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	conf := &oauth2.Config{
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
		Scopes:       ep.Scopes,
		Endpoint:     oauth2.Endpoint{TokenURL: ep.TokenURL},
	}

	// Only the refresh token is passed so the token source always performs the grant
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		return secrets.TokenRecord{}, err
	}

	fresh := secrets.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = rec.RefreshToken
	}
	return fresh, nil
}
