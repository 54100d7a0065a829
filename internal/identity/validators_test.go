package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/mcp-authgate/internal/supabase"
)

func detailOf(t *testing.T, err error) string {
	t.Helper()
	var ue *UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	return ue.Detail
}

func TestSupabaseValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer valid" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT: token is expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"user_123","email":"a@example.com","app_metadata":{"org_id":"org_9"},"user_metadata":{"name":"A"}}`))
	}))
	defer srv.Close()

	v := NewSupabaseValidator(supabase.NewClient(srv.URL, "anon"))

	id, err := v.Validate(context.Background(), "valid")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.ID != "user_123" || id.Email != "a@example.com" || id.OrgID != "org_9" || id.Metadata["name"] != "A" {
		t.Errorf("unexpected identity %+v", id)
	}

	_, err = v.Validate(context.Background(), "expired")
	if got := detailOf(t, err); got != "Token validation failed: invalid JWT: token is expired" {
		t.Errorf("detail = %q", got)
	}
}

func TestSupabaseValidatorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewSupabaseValidator(supabase.NewClient(url, "anon")).Validate(context.Background(), "tok")
	if got := detailOf(t, err); !strings.HasPrefix(got, "Token validation failed: ") {
		t.Errorf("transport error should be folded into the detail, got %q", got)
	}
}

func TestLangSmithValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("x-api-key") {
		case "good":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":           "ls-user",
				"email":        "ls@example.com",
				"organization": map[string]string{"id": "org-ls"},
				"workspace":    map[string]string{"id": "ws-1"},
			})
		case "garbage":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	v := NewLangSmithValidator(srv.URL+"/", srv.Client())

	id, err := v.Validate(context.Background(), "good")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.ID != "ls-user" || id.OrgID != "org-ls" || id.WorkspaceID != "ws-1" {
		t.Errorf("unexpected identity %+v", id)
	}

	_, err = v.Validate(context.Background(), "bad")
	if got := detailOf(t, err); got != "Invalid API key" {
		t.Errorf("detail = %q", got)
	}

	_, err = v.Validate(context.Background(), "garbage")
	if got := detailOf(t, err); got != "Unable to retrieve user information" {
		t.Errorf("detail = %q", got)
	}
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWTValidator(t *testing.T) {
	const secret = "super-secret-jwt-token-with-at-least-32-characters"
	v := NewJWTValidator(secret, "authenticated")
	now := time.Now()

	valid := signHS256(t, secret, jwt.MapClaims{
		"sub":          "user_123",
		"email":        "a@example.com",
		"aud":          "authenticated",
		"exp":          now.Add(time.Hour).Unix(),
		"app_metadata": map[string]interface{}{"org_id": "org_1"},
	})
	id, err := v.Validate(context.Background(), valid)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.ID != "user_123" || id.OrgID != "org_1" {
		t.Errorf("unexpected identity %+v", id)
	}

	rs256Key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rs256, _ := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user_123", "aud": "authenticated", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(rs256Key)

	invalid := map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": signHS256(t, "another-secret", jwt.MapClaims{"sub": "u", "aud": "authenticated", "exp": now.Add(time.Hour).Unix()}),
		"expired":      signHS256(t, secret, jwt.MapClaims{"sub": "u", "aud": "authenticated", "exp": now.Add(-time.Minute).Unix()}),
		"no exp":       signHS256(t, secret, jwt.MapClaims{"sub": "u", "aud": "authenticated"}),
		"wrong aud":    signHS256(t, secret, jwt.MapClaims{"sub": "u", "aud": "anon", "exp": now.Add(time.Hour).Unix()}),
		"no subject":   signHS256(t, secret, jwt.MapClaims{"aud": "authenticated", "exp": now.Add(time.Hour).Unix()}),
		"wrong alg":    rs256,
	}
	for name, tok := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tok)
			if got := detailOf(t, err); got != "Invalid token" {
				t.Errorf("detail = %q", got)
			}
		})
	}
}

func TestOIDCValidator(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	const issuer = "https://issuer.example.com"

	verifier := oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: "mcp-authgate"})
	v := NewOIDCValidatorWithVerifier(verifier)

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	now := time.Now()

	id, err := v.Validate(context.Background(), sign(jwt.MapClaims{
		"iss":    issuer,
		"aud":    "mcp-authgate",
		"sub":    "oidc-user",
		"email":  "o@example.com",
		"org_id": "org-o",
		"iat":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
	}))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.ID != "oidc-user" || id.Email != "o@example.com" || id.OrgID != "org-o" {
		t.Errorf("unexpected identity %+v", id)
	}

	_, err = v.Validate(context.Background(), sign(jwt.MapClaims{
		"iss": issuer,
		"aud": "someone-else",
		"sub": "oidc-user",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}))
	if got := detailOf(t, err); got != "Invalid token" {
		t.Errorf("detail = %q", got)
	}
}

func TestFirstOf(t *testing.T) {
	reject := ValidatorFunc(func(context.Context, string) (Identity, error) {
		return Identity{}, Unauthorized("Token expired", nil)
	})
	accept := ValidatorFunc(func(_ context.Context, cred string) (Identity, error) {
		if cred != "ok" {
			return Identity{}, Unauthorized("Invalid token", nil)
		}
		return Identity{ID: "user_123"}, nil
	})

	id, err := FirstOf(reject, accept).Validate(context.Background(), "ok")
	if err != nil || id.ID != "user_123" {
		t.Fatalf("got %+v, %v", id, err)
	}

	_, err = FirstOf(accept, reject).Validate(context.Background(), "nope")
	if got := detailOf(t, err); got != "Token expired" {
		t.Errorf("detail = %q, want last rejection", got)
	}

	_, err = FirstOf().Validate(context.Background(), "ok")
	if got := detailOf(t, err); got != "Invalid token" {
		t.Errorf("empty FirstOf detail = %q", got)
	}
}
