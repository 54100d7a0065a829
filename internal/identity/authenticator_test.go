package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/secrets"
)

type staticResolver map[string]secrets.UserTokens

func (s staticResolver) Resolve(_ context.Context, userID string, services []string) secrets.UserTokens {
	out := secrets.UserTokens{}
	for _, svc := range services {
		if rec, ok := s[userID][svc]; ok {
			out[svc] = rec
		}
	}
	return out
}

type countingRefresher struct{ calls int }

func (c *countingRefresher) Refresh(_ context.Context, _ string, tokens secrets.UserTokens) secrets.UserTokens {
	c.calls++
	return tokens
}

func fixedValidator(id Identity, accept string) Validator {
	return ValidatorFunc(func(_ context.Context, cred string) (Identity, error) {
		if cred != accept {
			return Identity{}, Unauthorized("Invalid token", nil)
		}
		return id, nil
	})
}

func newTestAuthenticator(buf *bytes.Buffer) (*Authenticator, *countingRefresher) {
	ref := &countingRefresher{}
	return &Authenticator{
		Bearer: fixedValidator(Identity{ID: "user_123", Email: "u@example.com", OrgID: "org"}, "good-token"),
		Resolver: staticResolver{
			"user_123": {"github": {AccessToken: "ghp_user123githubtoken"}},
		},
		Refresher: ref,
		Services:  func() []string { return []string{"github", "jira"} },
		Logger:    logging.NewLoggerWithWriter(false, false, false, buf),
		now:       func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
	}, ref
}

func TestAuthenticateSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	a, ref := newTestAuthenticator(buf)

	h := http.Header{}
	h.Set("Authorization", "Bearer good-token")

	user, err := a.Authenticate(context.Background(), h)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.Identity.ID != "user_123" || user.Credential != KindBearer {
		t.Errorf("unexpected user %+v", user)
	}
	if !user.Tokens.Has("github") || user.Tokens.Has("jira") {
		t.Errorf("unexpected tokens %v", user.Tokens.Services())
	}
	if ref.calls != 1 {
		t.Errorf("refresher called %d times", ref.calls)
	}
	if strings.Contains(buf.String(), "good-token") {
		t.Error("inbound credential leaked into logs")
	}
}

func TestAuthenticateIdempotent(t *testing.T) {
	a, _ := newTestAuthenticator(&bytes.Buffer{})
	h := http.Header{}
	h.Set("Authorization", "Bearer good-token")

	first, err := a.Authenticate(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Authenticate(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Claims(), second.Claims()) {
		t.Errorf("repeated authentication differs:\n%v\n%v", first.Claims(), second.Claims())
	}
}

func TestAuthenticateFailures(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		wantDetail string
	}{
		{"missing", nil, "Missing authorization token"},
		{"invalid token", map[string]string{"Authorization": "Bearer nope"}, "Invalid token"},
		{"api key not enabled", map[string]string{"x-api-key": "k"}, "API key authentication is not enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ref := newTestAuthenticator(&bytes.Buffer{})
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			user, err := a.Authenticate(context.Background(), h)
			if user != nil {
				t.Fatal("no identity may be returned on failure")
			}
			if got := detailOf(t, err); got != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got, tt.wantDetail)
			}
			if ref.calls != 0 {
				t.Error("tokens must not be refreshed for failed authentication")
			}
		})
	}
}

func TestAuthenticateWrapsNonUnauthorizedErrors(t *testing.T) {
	a, _ := newTestAuthenticator(&bytes.Buffer{})
	boom := errors.New("boom")
	a.Bearer = ValidatorFunc(func(context.Context, string) (Identity, error) { return Identity{}, boom })

	h := http.Header{}
	h.Set("Authorization", "Bearer x")
	_, err := a.Authenticate(context.Background(), h)
	if !IsUnauthorized(err) || !errors.Is(err, boom) {
		t.Errorf("expected wrapped unauthorized error, got %v", err)
	}
}

func TestAuthenticateWithoutTokens(t *testing.T) {
	a, _ := newTestAuthenticator(&bytes.Buffer{})
	a.Resolver = nil

	h := http.Header{}
	h.Set("Authorization", "Bearer good-token")
	user, err := a.Authenticate(context.Background(), h)
	if err != nil {
		t.Fatalf("missing tokens must not fail authentication: %v", err)
	}
	if user.Tokens == nil || len(user.Tokens.Services()) != 0 {
		t.Errorf("expected empty tokens, got %v", user.Tokens)
	}
}

func TestAuthenticateDoesNotRetainCredentials(t *testing.T) {
	buf := &bytes.Buffer{}
	a, _ := newTestAuthenticator(buf)
	a.Bearer = ValidatorFunc(func(_ context.Context, cred string) (Identity, error) {
		return Identity{ID: "user_123"}, nil
	})

	for i := 0; i < 100; i++ {
		h := http.Header{}
		h.Set("Authorization", fmt.Sprintf("Bearer caller-token-%04d", i))
		if _, err := a.Authenticate(context.Background(), h); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	}

	masker := a.Logger.Masker()
	for _, v := range []string{"caller-token-0000", "caller-token-0099", "ghp_user123githubtoken"} {
		if got := masker.Mask(v); got != v {
			t.Errorf("%s still held by the shared logger after the request", v)
		}
	}
}
