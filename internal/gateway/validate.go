package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

// ErrNoValidateURL is returned for services without a validation endpoint
var ErrNoValidateURL = errors.New("no validation endpoint configured")

// TokenRejectedError is returned when the service refuses a token
type TokenRejectedError struct {
	Service    string
	StatusCode int
}

func (e *TokenRejectedError) Error() string {
	return fmt.Sprintf("%s rejected the token: HTTP %d", e.Service, e.StatusCode)
}

// ValidateToken checks token against the service's validation endpoint.
// Only a 200 response accepts the token. Transport failures are returned as
// OperationError so they can be told apart from a rejected token.
func ValidateToken(ctx context.Context, client *http.Client, spec ServiceSpec, token string) error {
	if spec.ValidateURL == "" {
		metrics.TokenValidations.WithLabelValues(spec.Name, metrics.ResultSkipped).Inc()
		return fmt.Errorf("%s: %w", spec.Name, ErrNoValidateURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.ValidateURL, nil)
	if err != nil {
		return fmt.Errorf("invalid validation url for %s: %w", spec.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		metrics.TokenValidations.WithLabelValues(spec.Name, metrics.ResultFailure).Inc()
		return &OperationError{Service: spec.Name, Tool: "validate", Cause: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		metrics.TokenValidations.WithLabelValues(spec.Name, metrics.ResultDenied).Inc()
		return &TokenRejectedError{Service: spec.Name, StatusCode: resp.StatusCode}
	}
	metrics.TokenValidations.WithLabelValues(spec.Name, metrics.ResultSuccess).Inc()
	return nil
}
