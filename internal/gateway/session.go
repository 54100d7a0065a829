package gateway

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

// Factory creates per-request sessions
type Factory struct {
	Catalog *CatalogStore
	Version string
	Logger  *logging.Logger
	// Base is the HTTP transport used to reach downstream servers
	Base    http.RoundTripper
	Timeout time.Duration
}

// NewSession binds a session to user. The session must be closed when the
// request ends.
func (f *Factory) NewSession(user *identity.AuthUser) *Session {
	return &Session{
		user:    user,
		catalog: f.Catalog.Catalog(),
		opts: ToolClientOptions{
			Version: f.Version,
			Logger:  f.Logger.WithSecrets(user.Secrets()...),
			Base:    f.Base,
			Timeout: f.Timeout,
		},
		configs: map[string][]ServiceClientConfig{},
		clients: map[string]*ToolClient{},
	}
}

// Session is the per-request context object holding the caller, their
// client configs and the MCP clients opened on their behalf. Nothing in a
// session outlives the request.
type Session struct {
	user    *identity.AuthUser
	catalog Catalog
	opts    ToolClientOptions

	mu      sync.Mutex
	configs map[string][]ServiceClientConfig
	clients map[string]*ToolClient
	closed  bool
}

// User returns the authenticated user of the session
func (s *Session) User() *identity.AuthUser { return s.user }

// Catalog returns the catalog snapshot taken when the session was created
func (s *Session) Catalog() Catalog { return s.catalog }

// AvailableServices returns the services the user can reach
func (s *Session) AvailableServices() []string {
	return AvailableServices(s.user, s.catalog)
}

// Configs checks access to services and returns their client configs in
// request order. Results are cached for the session keyed by the sorted
// service set.
func (s *Session) Configs(services []string) ([]ServiceClientConfig, error) {
	if err := CheckAccess(s.user, s.catalog, services); err != nil {
		for _, svc := range missingServices(err) {
			if _, known := s.catalog[svc]; known {
				metrics.ToolCalls.WithLabelValues(svc, metrics.ResultDenied).Inc()
			}
		}
		return nil, err
	}

	key := serviceSetKey(services)
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.configs[key]
	if ok {
		return reorder(cached, services), nil
	}

	var configs []ServiceClientConfig
	seen := map[string]bool{}
	for _, svc := range services {
		if seen[svc] {
			continue
		}
		seen[svc] = true
		cfg, err := BuildConfig(s.user, s.catalog[svc], s.opts.Version)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	s.configs[key] = configs
	return configs, nil
}

// Client returns a connected client for service, opening it on first use
func (s *Session) Client(ctx context.Context, service string) (*ToolClient, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &OperationError{Service: service, Cause: errors.New("session closed")}
	}
	if c, ok := s.clients[service]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	configs, err := s.Configs([]string{service})
	if err != nil {
		return nil, err
	}
	c, err := Connect(ctx, configs[0], s.opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = c.Close()
		return nil, &OperationError{Service: service, Cause: errors.New("session closed")}
	}
	if existing, ok := s.clients[service]; ok {
		_ = c.Close()
		return existing, nil
	}
	s.clients[service] = c
	return c, nil
}

// Clients opens clients for every requested service. Access to all of them
// is checked before any connection is made.
func (s *Session) Clients(ctx context.Context, services []string) (map[string]*ToolClient, error) {
	if _, err := s.Configs(services); err != nil {
		return nil, err
	}
	out := make(map[string]*ToolClient, len(services))
	for _, svc := range services {
		c, err := s.Client(ctx, svc)
		if err != nil {
			return nil, err
		}
		out[svc] = c
	}
	return out, nil
}

// ListTools lists the tools of service
func (s *Session) ListTools(ctx context.Context, service string) ([]mcp.Tool, error) {
	c, err := s.Client(ctx, service)
	if err != nil {
		return nil, err
	}
	return c.ListTools(ctx)
}

// CallTool invokes tool on service. A user_context argument describing the
// caller is added unless args already carries one.
func (s *Session) CallTool(ctx context.Context, service, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c, err := s.Client(ctx, service)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	if _, ok := merged["user_context"]; !ok {
		merged["user_context"] = map[string]interface{}{
			"user_id": s.user.Identity.ID,
			"org_id":  s.user.Identity.OrgID,
			"email":   s.user.Identity.Email,
		}
	}
	return c.CallTool(ctx, tool, merged)
}

// Close closes every client opened by the session
func (s *Session) Close() error {
	s.mu.Lock()
	clients := s.clients
	s.clients = map[string]*ToolClient{}
	s.configs = map[string][]ServiceClientConfig{}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func serviceSetKey(services []string) string {
	sorted := append([]string(nil), services...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, svc := range sorted {
		if i > 0 && svc == sorted[i-1] {
			continue
		}
		out = append(out, svc)
	}
	return strings.Join(out, "|")
}

func reorder(configs []ServiceClientConfig, services []string) []ServiceClientConfig {
	byName := make(map[string]ServiceClientConfig, len(configs))
	for _, c := range configs {
		byName[c.Service] = c
	}
	out := make([]ServiceClientConfig, 0, len(configs))
	seen := map[string]bool{}
	for _, svc := range services {
		if seen[svc] {
			continue
		}
		seen[svc] = true
		out = append(out, byName[svc])
	}
	return out
}

func missingServices(err error) []string {
	var mae *MissingAccessError
	if errors.As(err, &mae) {
		return mae.Services
	}
	return nil
}
