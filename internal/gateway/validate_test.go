package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodGet || r.URL.Path != "/user" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if gotAuth != "Bearer ghp_valid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"login":"octocat"}`))
	}))
	defer srv.Close()

	spec := ServiceSpec{Name: "github", ValidateURL: srv.URL + "/user"}
	ctx := context.Background()

	if err := ValidateToken(ctx, srv.Client(), spec, "ghp_valid"); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if gotAuth != "Bearer ghp_valid" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	var rejected *TokenRejectedError
	if err := ValidateToken(ctx, srv.Client(), spec, "ghp_revoked"); !errors.As(err, &rejected) || rejected.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected rejection, got %v", err)
	}

	if err := ValidateToken(ctx, nil, ServiceSpec{Name: "jira"}, "x"); !errors.Is(err, ErrNoValidateURL) {
		t.Errorf("expected ErrNoValidateURL, got %v", err)
	}
}

func TestValidateTokenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var opErr *OperationError
	err := ValidateToken(context.Background(), nil, ServiceSpec{Name: "github", ValidateURL: url}, "ghp_valid")
	if !errors.As(err, &opErr) || opErr.Service != "github" {
		t.Errorf("expected OperationError, got %v", err)
	}
}
