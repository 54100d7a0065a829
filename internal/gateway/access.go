package gateway

import (
	"fmt"
	"strings"

	"github.com/giantswarm/mcp-authgate/internal/identity"
)

// Auth methods a downstream transport may accept
const (
	AuthHeader = "header"
	AuthEnv    = "env"
	AuthNone   = "none"
)

// MissingAccessError is returned when the caller has no token for one or
// more requested services
type MissingAccessError struct {
	Services []string
}

func (e *MissingAccessError) Error() string {
	return fmt.Sprintf("missing service access: %s", strings.Join(e.Services, ", "))
}

// UnsupportedTransportError is returned for services whose transport cannot
// carry a per-user token
type UnsupportedTransportError struct {
	Service   string
	Transport string
}

func (e *UnsupportedTransportError) Error() string {
	return fmt.Sprintf("service %s: transport %q does not support header authentication", e.Service, e.Transport)
}

// OperationError wraps a failed downstream call. It is never retried.
type OperationError struct {
	Service string
	Tool    string
	Cause   error
}

func (e *OperationError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Service, e.Cause)
	}
	return fmt.Sprintf("%s operation %s failed: %v", e.Service, e.Tool, e.Cause)
}

func (e *OperationError) Unwrap() error { return e.Cause }

// ServiceClientConfig is the read-only connection config for one service
type ServiceClientConfig struct {
	Service   string
	URL       string
	Transport string
	Headers   map[string]string
}

// SupportsAuth reports whether transport can carry credentials using method
func SupportsAuth(transport, method string) bool {
	switch method {
	case AuthNone:
		return true
	case AuthHeader:
		return transport == TransportStreamableHTTP || transport == TransportSSE
	case AuthEnv:
		return transport == TransportStdio
	}
	return false
}

// CheckAccess verifies the user holds a token for every requested service
// that the catalog knows. The returned MissingAccessError names exactly the
// services that failed, in request order.
func CheckAccess(user *identity.AuthUser, catalog Catalog, services []string) error {
	var missing []string
	seen := map[string]bool{}
	for _, svc := range services {
		if seen[svc] {
			continue
		}
		seen[svc] = true
		if _, ok := catalog[svc]; !ok || user.Token(svc) == "" {
			missing = append(missing, svc)
		}
	}
	if len(missing) > 0 {
		return &MissingAccessError{Services: missing}
	}
	return nil
}

// AvailableServices returns the catalog services the user holds a token for
func AvailableServices(user *identity.AuthUser, catalog Catalog) []string {
	var out []string
	for _, svc := range catalog.Names() {
		if user.Token(svc) != "" {
			out = append(out, svc)
		}
	}
	return out
}

// BuildConfig derives the connection config for spec from the user's token
func BuildConfig(user *identity.AuthUser, spec ServiceSpec, version string) (ServiceClientConfig, error) {
	if !SupportsAuth(spec.Transport, AuthHeader) {
		return ServiceClientConfig{}, &UnsupportedTransportError{Service: spec.Name, Transport: spec.Transport}
	}
	token := user.Token(spec.Name)
	if token == "" {
		return ServiceClientConfig{}, &MissingAccessError{Services: []string{spec.Name}}
	}
	if version == "" {
		version = "dev"
	}

	headers := make(map[string]string, len(spec.Headers)+3)
	for k, v := range spec.Headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + token
	headers["User-Agent"] = "mcp-authgate/" + version
	headers["X-User-ID"] = user.Identity.ID

	return ServiceClientConfig{
		Service:   spec.Name,
		URL:       spec.URL,
		Transport: spec.Transport,
		Headers:   headers,
	}, nil
}
