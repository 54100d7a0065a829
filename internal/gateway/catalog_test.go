package gateway

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const testCatalogYAML = `
services:
  - name: github
    url: https://gh.example.com/mcp
    env_var: GITHUB_PAT
    token_url: https://github.com/login/oauth/access_token
    client_id: gh-client
    scopes: [repo, read:user]
    validate_url: https://api.github.com/user
  - name: jira
    url: https://jira.example.com/sse
    transport: sse
    search_tool: search_issues
    headers:
      X-Tenant: acme
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if !reflect.DeepEqual(c.Names(), []string{"github", "jira"}) {
		t.Errorf("Names() = %v", c.Names())
	}
	if c["github"].Transport != TransportStreamableHTTP {
		t.Errorf("default transport not applied: %q", c["github"].Transport)
	}
	if c["github"].ValidateURL != "https://api.github.com/user" || c["jira"].ValidateURL != "" {
		t.Errorf("validate_url not parsed: %+v", c["github"])
	}
	if c["jira"].Transport != TransportSSE || c["jira"].Headers["X-Tenant"] != "acme" {
		t.Errorf("unexpected jira spec %+v", c["jira"])
	}

	eps := c.Endpoints()
	if len(eps) != 1 || eps["github"].ClientID != "gh-client" || len(eps["github"].Scopes) != 2 {
		t.Errorf("Endpoints() = %+v", eps)
	}
	if vars := c.EnvVars(); !reflect.DeepEqual(vars, map[string]string{"github": "GITHUB_PAT"}) {
		t.Errorf("EnvVars() = %v", vars)
	}
}

func TestParseCatalogErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      "services: [",
		"no name":       "services:\n  - url: https://x\n",
		"no url":        "services:\n  - name: x\n",
		"duplicate":     "services:\n  - {name: x, url: https://x}\n  - {name: x, url: https://y}\n",
		"bad transport": "services:\n  - {name: x, url: https://x, transport: carrier-pigeon}\n",
		"stdio":         "services:\n  - {name: x, url: ./server, transport: stdio}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	t.Setenv("GITHUB_MCP_URL", "https://override.example.com/mcp")
	c := DefaultCatalog()
	if !reflect.DeepEqual(c.Names(), []string{"confluence", "github", "jira", "slack"}) {
		t.Errorf("Names() = %v", c.Names())
	}
	if c["github"].URL != "https://override.example.com/mcp" {
		t.Errorf("GITHUB_MCP_URL not applied: %s", c["github"].URL)
	}
	if c["jira"].EnvVar != "JIRA_TOKEN" {
		t.Errorf("unexpected jira env var %q", c["jira"].EnvVar)
	}
}

func TestCatalogStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalogYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := OpenCatalogStore(path)
	if err != nil {
		t.Fatalf("OpenCatalogStore: %v", err)
	}
	if len(store.Names()) != 2 || store.Path() != path {
		t.Fatalf("unexpected store %v", store.Names())
	}

	if err := os.WriteFile(path, []byte("services:\n  - {name: slack, url: https://slack}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !reflect.DeepEqual(store.Names(), []string{"slack"}) {
		t.Errorf("Names() after reload = %v", store.Names())
	}

	if err := os.WriteFile(path, []byte("services: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err == nil {
		t.Error("expected reload error")
	}
	if !reflect.DeepEqual(store.Names(), []string{"slack"}) {
		t.Error("failed reload must keep the current catalog")
	}

	def, err := OpenCatalogStore("")
	if err != nil || len(def.Names()) != 4 || def.Reload() != nil {
		t.Errorf("default store: %v %v", def.Names(), err)
	}
}
