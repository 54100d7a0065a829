// Package gateway gates access to downstream MCP tool servers and builds the
// per-request client configurations used to reach them.
package gateway

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/mcp-authgate/internal/refresh"
)

// Transport kinds for downstream MCP servers
const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
	TransportStdio          = "stdio"
)

// ServiceSpec describes how to reach one downstream MCP server
type ServiceSpec struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Transport string `yaml:"transport"`
	// EnvVar names the shared token variable used by the env secret backend
	EnvVar string `yaml:"env_var,omitempty"`

	TokenURL     string   `yaml:"token_url,omitempty"`
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`

	// ValidateURL answers 200 to a GET carrying a valid bearer token
	ValidateURL string `yaml:"validate_url,omitempty"`

	// SearchTool is the tool invoked for cross-service search
	SearchTool string            `yaml:"search_tool,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// Catalog maps service names to their specs
type Catalog map[string]ServiceSpec

type catalogFile struct {
	Services []ServiceSpec `yaml:"services"`
}

// DefaultCatalog returns the built-in services. URLs can be overridden with
// <SERVICE>_MCP_URL environment variables.
func DefaultCatalog() Catalog {
	c := Catalog{
		"github": {
			Name:       "github",
			URL:        envOr("GITHUB_MCP_URL", "https://api.githubcopilot.com/mcp/"),
			Transport:  TransportStreamableHTTP,
			EnvVar:     "GITHUB_PAT",
			SearchTool: "search_repos",

			ValidateURL: envOr("GITHUB_VALIDATE_URL", "https://api.github.com/user"),
		},
		"jira": {
			Name:       "jira",
			URL:        envOr("JIRA_MCP_URL", "https://jira-mcp-server.example.com/mcp"),
			Transport:  TransportStreamableHTTP,
			EnvVar:     "JIRA_TOKEN",
			SearchTool: "search_issues",
		},
		"slack": {
			Name:       "slack",
			URL:        envOr("SLACK_MCP_URL", "https://slack-mcp-server.example.com/mcp"),
			Transport:  TransportStreamableHTTP,
			EnvVar:     "SLACK_TOKEN",
			SearchTool: "search_messages",
		},
		"confluence": {
			Name:       "confluence",
			URL:        envOr("CONFLUENCE_MCP_URL", "https://confluence-mcp-server.example.com/mcp"),
			Transport:  TransportStreamableHTTP,
			EnvVar:     "CONFLUENCE_TOKEN",
			SearchTool: "search_pages",
		},
	}
	return c
}

// ParseCatalog decodes a YAML catalog document
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := Catalog{}
	for i, spec := range f.Services {
		if spec.Name == "" {
			return nil, fmt.Errorf("catalog service %d has no name", i)
		}
		if spec.URL == "" {
			return nil, fmt.Errorf("catalog service %s has no url", spec.Name)
		}
		if _, dup := c[spec.Name]; dup {
			return nil, fmt.Errorf("catalog service %s is defined twice", spec.Name)
		}
		if spec.Transport == "" {
			spec.Transport = TransportStreamableHTTP
		}
		switch spec.Transport {
		case TransportStreamableHTTP, TransportSSE:
		case TransportStdio:
			return nil, fmt.Errorf("catalog service %s: stdio transport cannot carry per-user tokens", spec.Name)
		default:
			return nil, fmt.Errorf("catalog service %s has unsupported transport %q", spec.Name, spec.Transport)
		}
		c[spec.Name] = spec
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog file
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Names returns the service names in sorted order
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvVars maps each service to its shared token variable
func (c Catalog) EnvVars() map[string]string {
	vars := map[string]string{}
	for name, spec := range c {
		if spec.EnvVar != "" {
			vars[name] = spec.EnvVar
		}
	}
	return vars
}

// Endpoints returns the OAuth2 refresh endpoints of services that have one
func (c Catalog) Endpoints() map[string]refresh.Endpoint {
	eps := map[string]refresh.Endpoint{}
	for name, spec := range c {
		if spec.TokenURL == "" {
			continue
		}
		eps[name] = refresh.Endpoint{
			TokenURL:     spec.TokenURL,
			ClientID:     spec.ClientID,
			ClientSecret: spec.ClientSecret,
			Scopes:       spec.Scopes,
		}
	}
	return eps
}

// CatalogStore holds the current catalog and swaps it on reload
type CatalogStore struct {
	mu      sync.RWMutex
	catalog Catalog
	path    string
}

// NewCatalogStore returns a store serving c. When path is set Reload reads
// the catalog from it.
func NewCatalogStore(c Catalog, path string) *CatalogStore {
	return &CatalogStore{catalog: c, path: path}
}

// OpenCatalogStore loads path, or the default catalog if path is empty
func OpenCatalogStore(path string) (*CatalogStore, error) {
	if path == "" {
		return NewCatalogStore(DefaultCatalog(), ""), nil
	}
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return NewCatalogStore(c, path), nil
}

// Path returns the file the catalog was loaded from
func (s *CatalogStore) Path() string { return s.path }

// Catalog returns the current catalog. Callers must not modify it.
func (s *CatalogStore) Catalog() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Names returns the current service names
func (s *CatalogStore) Names() []string {
	return s.Catalog().Names()
}

// Reload re-reads the catalog file. On error the current catalog is kept.
func (s *CatalogStore) Reload() error {
	if s.path == "" {
		return nil
	}
	c, err := LoadCatalog(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
