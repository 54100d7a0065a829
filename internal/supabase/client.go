// Package supabase is a minimal client for the Supabase Auth (GoTrue) REST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// User is the subset of the GoTrue user object mcp-authgate consumes
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	Role         string                 `json:"role,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at,omitempty"`
}

// Session is returned by password sign-in
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// APIError is a non-2xx response from the Auth API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase auth: %d %s", e.StatusCode, e.Message)
}

// Client talks to <URL>/auth/v1
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithServiceKey enables admin endpoints
func WithServiceKey(key string) Option {
	return func(c *Client) { c.serviceKey = key }
}

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the project at baseURL
func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUser returns the user the access token belongs to
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", c.anonKey, accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SignInWithPassword exchanges email and password for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", c.anonKey, c.anonKey, body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateUserParams describes a user created through the admin API
type CreateUserParams struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password"`
	EmailConfirm bool                   `json:"email_confirm"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
}

// CreateUser creates a user. Requires the service key.
func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	if c.serviceKey == "" {
		return nil, fmt.Errorf("supabase service key is required to create users")
	}
	var u User
	if err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", c.serviceKey, c.serviceKey, params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns the first page of users. Requires the service key.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	if c.serviceKey == "" {
		return nil, fmt.Errorf("supabase service key is required to list users")
	}
	var resp struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users", c.serviceKey, c.serviceKey, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) do(ctx context.Context, method, path, apiKey, bearer string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage extracts a human readable message from a GoTrue error body.
// GoTrue uses several field names depending on version and endpoint.
func errorMessage(body []byte) string {
	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		for _, m := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
