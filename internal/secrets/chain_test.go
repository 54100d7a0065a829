package secrets

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/giantswarm/mcp-authgate/internal/logging"
)

// memBackend is an in-memory backend for chain tests
type memBackend struct {
	name        string
	unavailable bool
	values      map[string]string
	err         error
	calls       int
}

func newMem(name string, values map[string]string) *memBackend {
	if values == nil {
		values = map[string]string{}
	}
	return &memBackend{name: name, values: values}
}

func (m *memBackend) Name() string    { return m.name }
func (m *memBackend) Available() bool { return !m.unavailable }

func (m *memBackend) Get(_ context.Context, userID, service string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[userID+"/"+service]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, userID, service, value string) error {
	m.values[userID+"/"+service] = value
	return nil
}

func (m *memBackend) Delete(_ context.Context, userID, service string) error {
	if _, ok := m.values[userID+"/"+service]; !ok {
		return ErrSecretNotFound
	}
	delete(m.values, userID+"/"+service)
	return nil
}

// readOnly hides the Writer methods of a memBackend
type readOnly struct{ b *memBackend }

func (r readOnly) Name() string    { return r.b.Name() }
func (r readOnly) Available() bool { return r.b.Available() }
func (r readOnly) Get(ctx context.Context, u, s string) (string, error) {
	return r.b.Get(ctx, u, s)
}

func TestChainLookupOrder(t *testing.T) {
	vault := newMem("vault", map[string]string{"u1/github": "vault-token"})
	cloud := newMem("cloud", map[string]string{"u1/github": "cloud-token", "u1/jira": "cloud-jira"})
	env := newMem("env", map[string]string{"u1/github": "env-token", "u1/jira": "env-jira", "u1/slack": "env-slack"})

	chain := NewChain(nil, vault, cloud, env)

	tests := []struct {
		service     string
		wantValue   string
		wantBackend string
	}{
		{"github", "vault-token", "vault"},
		{"jira", "cloud-jira", "cloud"},
		{"slack", "env-slack", "env"},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			s, ok := chain.Lookup(context.Background(), "u1", tt.service)
			if !ok {
				t.Fatal("expected a value")
			}
			if s.Record.AccessToken != tt.wantValue || s.Backend != tt.wantBackend {
				t.Errorf("got %q from %s, want %q from %s", s.Record.AccessToken, s.Backend, tt.wantValue, tt.wantBackend)
			}
		})
	}

	if _, ok := chain.Lookup(context.Background(), "u1", "confluence"); ok {
		t.Error("expected absent for a service no backend holds")
	}
}

func TestChainBackendFailureFallsThrough(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewLoggerWithWriter(false, false, false, buf)

	broken := newMem("vault", nil)
	broken.err = errors.New("connection refused")
	cloud := newMem("cloud", map[string]string{"u1/github": "ghp_fromcloudsecretvalue"})

	chain := NewChain(logger, broken, cloud)
	s, ok := chain.Lookup(context.Background(), "u1", "github")
	if !ok || s.Backend != "cloud" {
		t.Fatalf("expected fallback to cloud, got %+v ok=%v", s, ok)
	}

	out := buf.String()
	if !strings.Contains(out, "vault failed") {
		t.Errorf("expected backend failure to be logged, got %q", out)
	}
	if strings.Contains(out, "ghp_fromcloudsecretvalue") {
		t.Error("token value must never be logged")
	}
}

func TestChainEmptyValueIsAbsent(t *testing.T) {
	for name, blank := range map[string]string{
		"empty":             "",
		"whitespace":        "   \n",
		"blank json record": `{"access_token":" ","refresh_token":"r"}`,
	} {
		t.Run(name, func(t *testing.T) {
			first := newMem("first", map[string]string{"u1/github": blank})
			second := newMem("second", map[string]string{"u1/github": "second"})
			s, ok := NewChain(nil, first, second).Lookup(context.Background(), "u1", "github")
			if !ok || s.Record.AccessToken != "second" || s.Backend != "second" {
				t.Fatalf("blank value must fall through, got %+v", s)
			}
			if second.calls != 1 {
				t.Errorf("second backend consulted %d times", second.calls)
			}
		})
	}
}

func TestChainAllBackendsFail(t *testing.T) {
	a := newMem("a", nil)
	a.err = errors.New("boom")
	b := newMem("b", nil)
	b.err = errors.New("boom")

	if _, ok := NewChain(nil, a, b).Lookup(context.Background(), "u1", "github"); ok {
		t.Fatal("expected absent")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("each backend should be consulted exactly once, got %d/%d", a.calls, b.calls)
	}
}

func TestChainCancelledContext(t *testing.T) {
	a := newMem("a", map[string]string{"u1/github": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := NewChain(nil, a).Lookup(ctx, "u1", "github"); ok {
		t.Fatal("expected absent for a cancelled context")
	}
	if a.calls != 0 {
		t.Error("no backend should be called after cancellation")
	}
}

func TestNewChainDropsUnavailable(t *testing.T) {
	off := newMem("off", nil)
	off.unavailable = true
	on := newMem("on", nil)

	chain := NewChain(nil, off, nil, on)
	if got := chain.Backends(); !reflect.DeepEqual(got, []string{"on"}) {
		t.Errorf("Backends() = %v", got)
	}
}

func TestChainResolve(t *testing.T) {
	vault := newMem("vault", map[string]string{
		"u1/github": `{"access_token":"gh","refresh_token":"r","expiry":"2030-01-01T00:00:00Z"}`,
	})
	env := newMem("env", map[string]string{"u1/jira": "jira-token"})

	tokens := NewChain(nil, vault, env).Resolve(context.Background(), "u1", []string{"github", "jira", "slack"})

	if got := tokens.Services(); !reflect.DeepEqual(got, []string{"github", "jira"}) {
		t.Fatalf("Services() = %v", got)
	}
	if tokens["github"].RefreshToken != "r" || !tokens["github"].HasExpiry() {
		t.Errorf("JSON record not parsed: %+v", tokens["github"])
	}
	if tokens.Has("slack") {
		t.Error("slack should be absent")
	}
}

func TestChainStoreAndDelete(t *testing.T) {
	ro := readOnly{newMem("ro", nil)}
	rw := newMem("rw", nil)
	chain := NewChain(nil, ro, rw)

	name, err := chain.Store(context.Background(), "", "u1", "github", TokenRecord{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if name != "rw" || rw.values["u1/github"] != "tok" {
		t.Errorf("expected write to first writable backend, got %s %v", name, rw.values)
	}

	if _, err := chain.Store(context.Background(), "ro", "u1", "github", TokenRecord{AccessToken: "x"}); !errors.Is(err, ErrReadOnlyBackend) {
		t.Errorf("expected ErrReadOnlyBackend, got %v", err)
	}
	if _, err := chain.Store(context.Background(), "missing", "u1", "github", TokenRecord{AccessToken: "x"}); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}

	if err := chain.Delete(context.Background(), "", "u1", "github"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := chain.Delete(context.Background(), "", "u1", "github"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("second delete should report not found, got %v", err)
	}
}
