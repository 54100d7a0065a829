package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

// Secret is a resolved value together with the backend that produced it
type Secret struct {
	Record  TokenRecord
	Backend string
}

// Chain queries backends in order and returns the first non-empty value.
type Chain struct {
	backends []Backend
	logger   *logging.Logger
}

// NewChain creates a chain from the given backends, keeping their order.
// Backends that report themselves unavailable are dropped.
func NewChain(logger *logging.Logger, backends ...Backend) *Chain {
	available := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b == nil {
			continue
		}
		if !b.Available() {
			logger.Debug("Secret backend %s unavailable, skipping", b.Name())
			continue
		}
		available = append(available, b)
	}
	return &Chain{backends: available, logger: logger}
}

// Backends returns the names of the active backends in resolution order
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Lookup returns the first secret for (userID, service) holding a non-blank
// access token.
// Backend errors are logged and the next backend is tried; the second return
// value is false when no backend holds a value.
func (c *Chain) Lookup(ctx context.Context, userID, service string) (Secret, bool) {
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			c.logger.Warning("Secret lookup for %s cancelled: %v", service, err)
			return Secret{}, false
		}

		value, err := b.Get(ctx, userID, service)
		var rec TokenRecord
		if err == nil {
			rec = ParseRecord(value)
		}
		switch {
		case err == nil && rec.AccessToken != "":
			c.logger.InfoVerbose("Resolved %s token for user %s from %s", service, userID, b.Name())
			metrics.SecretLookups.WithLabelValues(b.Name(), metrics.ResultSuccess).Inc()
			return Secret{Record: rec, Backend: b.Name()}, true
		case err == nil, errors.Is(err, ErrSecretNotFound):
			metrics.SecretLookups.WithLabelValues(b.Name(), metrics.ResultNotFound).Inc()
		default:
			c.logger.Warning("Secret backend %s failed for %s: %v", b.Name(), service, err)
			metrics.SecretLookups.WithLabelValues(b.Name(), metrics.ResultFailure).Inc()
		}
	}
	c.logger.Debug("No %s token found for user %s", service, userID)
	return Secret{}, false
}

// Resolve looks up every service and returns the tokens that were found.
// Services without a value are simply absent from the result.
func (c *Chain) Resolve(ctx context.Context, userID string, services []string) UserTokens {
	tokens := make(UserTokens, len(services))
	for _, svc := range services {
		if s, ok := c.Lookup(ctx, userID, svc); ok {
			tokens[svc] = s.Record
		}
	}
	return tokens
}

// Writer returns the named writable backend, or the first writable backend
// in chain order when name is empty.
func (c *Chain) Writer(name string) (Writer, error) {
	for _, b := range c.backends {
		if name != "" && b.Name() != name {
			continue
		}
		w, ok := b.(Writer)
		if !ok {
			if name != "" {
				return nil, fmt.Errorf("%s: %w", name, ErrReadOnlyBackend)
			}
			continue
		}
		return w, nil
	}
	if name != "" {
		return nil, fmt.Errorf("backend %q: %w", name, ErrBackendUnavailable)
	}
	return nil, fmt.Errorf("no writable backend: %w", ErrBackendUnavailable)
}

// Store writes rec into the named backend, or the first writable one when
// backend is empty. It returns the name of the backend written to.
func (c *Chain) Store(ctx context.Context, backend, userID, service string, rec TokenRecord) (string, error) {
	w, err := c.Writer(backend)
	if err != nil {
		return "", err
	}
	if err := w.Set(ctx, userID, service, rec.Encode()); err != nil {
		return "", fmt.Errorf("failed to store %s secret in %s: %w", service, w.Name(), err)
	}
	return w.Name(), nil
}

// Delete removes the secret from the named backend, or from every writable
// backend when backend is empty. ErrSecretNotFound is returned only when no
// backend held the secret.
func (c *Chain) Delete(ctx context.Context, backend, userID, service string) error {
	if backend != "" {
		w, err := c.Writer(backend)
		if err != nil {
			return err
		}
		return w.Delete(ctx, userID, service)
	}

	deleted := false
	var errs []error
	for _, b := range c.backends {
		w, ok := b.(Writer)
		if !ok {
			continue
		}
		err := w.Delete(ctx, userID, service)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrSecretNotFound):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !deleted {
		return fmt.Errorf("%w: %s for user %s", ErrSecretNotFound, service, userID)
	}
	return nil
}
