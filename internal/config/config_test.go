package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/logging"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("MCP_AUTHGATE_SECRET_BACKENDS", "hcvault, env ,")
	t.Setenv("MCP_AUTHGATE_REFRESH_LEAD", "5m")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")
	t.Setenv("MCP_AUTHGATE_TRUST_FORWARDED_FOR", "true")

	c := FromEnv()

	if c.Supabase.URL != "https://project.supabase.co" {
		t.Errorf("trailing slash not trimmed: %q", c.Supabase.URL)
	}
	if got := strings.Join(c.SecretBackends, ","); got != "hcvault,env" {
		t.Errorf("SecretBackends = %q", got)
	}
	if c.RefreshLead != 5*time.Minute {
		t.Errorf("RefreshLead = %v", c.RefreshLead)
	}
	if c.AWSRegion != "eu-west-1" {
		t.Errorf("AWSRegion = %q", c.AWSRegion)
	}
	if !c.RateLimit.TrustForwardedFor {
		t.Error("TrustForwardedFor not read")
	}
}

func TestWithDefaults(t *testing.T) {
	orig := &Config{}
	c := orig.WithDefaults()

	if c == orig {
		t.Fatal("WithDefaults must return a copy")
	}
	if c.ListenAddr != ":2024" {
		t.Errorf("ListenAddr = %q", c.ListenAddr)
	}
	if c.RefreshLead != 10*time.Minute {
		t.Errorf("RefreshLead = %v", c.RefreshLead)
	}
	if c.Vault.Mount != "secret" {
		t.Errorf("Vault.Mount = %q", c.Vault.Mount)
	}
	if got := strings.Join(c.SecretBackends, ","); got != "pgvault,hcvault,aws,keyring,env" {
		t.Errorf("default backend order = %q", got)
	}
	if len(orig.SecretBackends) != 0 {
		t.Error("original config was modified")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty is valid"},
		{
			name:    "unknown backend",
			cfg:     Config{SecretBackends: []string{"env", "redis"}},
			wantErr: `unknown secret backend "redis"`,
		},
		{
			name:    "bad supabase scheme",
			cfg:     Config{Supabase: SupabaseConfig{URL: "ftp://x"}},
			wantErr: "invalid SUPABASE_URL",
		},
		{
			name:    "oidc without client id",
			cfg:     Config{OIDC: OIDCConfig{IssuerURL: "https://issuer"}},
			wantErr: "OIDC_CLIENT_ID is required",
		},
		{
			name:    "vault without host",
			cfg:     Config{Vault: VaultConfig{Addr: "http://"}},
			wantErr: "invalid VAULT_ADDR",
		},
		{
			name: "full config",
			cfg: Config{
				Supabase:       SupabaseConfig{URL: "https://p.supabase.co"},
				OIDC:           OIDCConfig{IssuerURL: "https://issuer", ClientID: "gate"},
				Vault:          VaultConfig{Addr: "https://vault:8200"},
				SecretBackends: []string{"pgvault", "aws"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHasBackend(t *testing.T) {
	c := (&Config{SecretBackends: []string{"aws"}}).WithDefaults()
	if !c.HasBackend("aws") || c.HasBackend("env") {
		t.Errorf("HasBackend mismatch for %v", c.SecretBackends)
	}
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("services: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, logging.NewLoggerWithWriter(false, false, false, nil), func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Keep writing until the watcher is registered and reports the change.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-changed:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("WatchFile returned error: %v", err)
			}
			return
		case <-ticker.C:
			if err := os.WriteFile(path, []byte("services: {github: {}}\n"), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for change notification")
		}
	}
}
