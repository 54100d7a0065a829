// Package config loads the mcp-authgate runtime configuration from the
// environment and watches on-disk configuration files for changes.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted in SecretBackends.
const (
	BackendPostgresVault  = "pgvault"
	BackendHashiCorpVault = "hcvault"
	BackendAWS            = "aws"
	BackendKeyring        = "keyring"
	BackendEnv            = "env"
)

// DefaultSecretBackends is the resolver order used when none is configured:
// vault stores first, then the cloud secrets manager, then environment.
var DefaultSecretBackends = []string{
	BackendPostgresVault,
	BackendHashiCorpVault,
	BackendAWS,
	BackendKeyring,
	BackendEnv,
}

// SupabaseConfig holds the identity provider and vault database settings
type SupabaseConfig struct {
	// URL is the project URL, e.g. https://xyz.supabase.co
	URL string

	// AnonKey is sent as the apikey header on user-facing calls
	AnonKey string

	// ServiceKey is required for admin calls (seeding users)
	ServiceKey string

	// JWTSecret enables local HS256 verification instead of a network round trip
	JWTSecret string

	// DBURL is a postgres connection string for the vault SQL functions
	DBURL string
}

// VaultConfig holds HashiCorp Vault settings
type VaultConfig struct {
	Addr  string
	Token string
	Mount string
}

// OIDCConfig holds settings for a generic OpenID Connect issuer
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

// RateLimitConfig bounds requests per client IP on the HTTP API
type RateLimitConfig struct {
	RPS   float64
	Burst int

	// TrustForwardedFor keys clients by X-Forwarded-For. Enable only behind
	// a proxy that sets the header.
	TrustForwardedFor bool
}

// Config is the complete runtime configuration
type Config struct {
	ListenAddr      string
	Supabase        SupabaseConfig
	LangSmithAPIURL string
	OIDC            OIDCConfig
	Vault           VaultConfig
	AWSRegion       string
	SecretBackends  []string
	CatalogPath     string
	RefreshLead     time.Duration
	RateLimit       RateLimitConfig
	RequestTimeout  time.Duration
}

// FromEnv reads configuration from environment variables.
// Values that are not set stay empty; call WithDefaults to fill them.
func FromEnv() *Config {
	c := &Config{
		ListenAddr: os.Getenv("MCP_AUTHGATE_LISTEN_ADDR"),
		Supabase: SupabaseConfig{
			URL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			AnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
			ServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
			JWTSecret:  os.Getenv("SUPABASE_JWT_SECRET"),
			DBURL:      os.Getenv("SUPABASE_DB_URL"),
		},
		LangSmithAPIURL: strings.TrimRight(os.Getenv("LANGSMITH_API_URL"), "/"),
		OIDC: OIDCConfig{
			IssuerURL: os.Getenv("OIDC_ISSUER_URL"),
			ClientID:  os.Getenv("OIDC_CLIENT_ID"),
		},
		Vault: VaultConfig{
			Addr:  os.Getenv("VAULT_ADDR"),
			Token: os.Getenv("VAULT_TOKEN"),
			Mount: os.Getenv("VAULT_KV_MOUNT"),
		},
		AWSRegion:   firstNonEmpty(os.Getenv("AWS_REGION"), os.Getenv("AWS_DEFAULT_REGION")),
		CatalogPath: os.Getenv("MCP_AUTHGATE_CATALOG"),
	}

	if v := os.Getenv("MCP_AUTHGATE_SECRET_BACKENDS"); v != "" {
		c.SecretBackends = splitList(v)
	}
	if v := os.Getenv("MCP_AUTHGATE_REFRESH_LEAD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RefreshLead = d
		}
	}
	if v := os.Getenv("MCP_AUTHGATE_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("MCP_AUTHGATE_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("MCP_AUTHGATE_TRUST_FORWARDED_FOR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RateLimit.TrustForwardedFor = b
		}
	}
	return c
}

// WithDefaults returns a copy of the config with defaults applied
func (c *Config) WithDefaults() *Config {
	out := *c
	out.SecretBackends = append([]string(nil), c.SecretBackends...)

	if out.ListenAddr == "" {
		out.ListenAddr = ":2024"
	}
	if out.LangSmithAPIURL == "" {
		out.LangSmithAPIURL = "https://api.smith.langchain.com"
	}
	if out.Vault.Mount == "" {
		out.Vault.Mount = "secret"
	}
	if len(out.SecretBackends) == 0 {
		out.SecretBackends = append([]string(nil), DefaultSecretBackends...)
	}
	if out.RefreshLead <= 0 {
		out.RefreshLead = 10 * time.Minute
	}
	if out.RateLimit.RPS <= 0 {
		out.RateLimit.RPS = 10
	}
	if out.RateLimit.Burst <= 0 {
		out.RateLimit.Burst = 20
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 30 * time.Second
	}
	return &out
}

// Validate checks the configuration for obvious mistakes
func (c *Config) Validate() error {
	for _, name := range c.SecretBackends {
		switch name {
		case BackendPostgresVault, BackendHashiCorpVault, BackendAWS, BackendKeyring, BackendEnv:
		default:
			return fmt.Errorf("unknown secret backend %q", name)
		}
	}

	if c.Supabase.URL != "" {
		if err := validateURL(c.Supabase.URL); err != nil {
			return fmt.Errorf("invalid SUPABASE_URL: %w", err)
		}
	}
	if c.LangSmithAPIURL != "" {
		if err := validateURL(c.LangSmithAPIURL); err != nil {
			return fmt.Errorf("invalid LANGSMITH_API_URL: %w", err)
		}
	}
	if c.OIDC.IssuerURL != "" && c.OIDC.ClientID == "" {
		return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}
	if c.Vault.Addr != "" {
		if err := validateURL(c.Vault.Addr); err != nil {
			return fmt.Errorf("invalid VAULT_ADDR: %w", err)
		}
	}
	return nil
}

// HasBackend reports whether the named backend is part of the configured chain
func (c *Config) HasBackend(name string) bool {
	for _, b := range c.SecretBackends {
		if b == name {
			return true
		}
	}
	return false
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
