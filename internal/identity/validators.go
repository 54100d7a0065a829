package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/mcp-authgate/internal/supabase"
)

// Validator confirms a credential with an identity provider
type Validator interface {
	Validate(ctx context.Context, credential string) (Identity, error)
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(ctx context.Context, credential string) (Identity, error)

func (f ValidatorFunc) Validate(ctx context.Context, credential string) (Identity, error) {
	return f(ctx, credential)
}

// SupabaseValidator checks bearer tokens with the Supabase Auth user endpoint
type SupabaseValidator struct {
	client *supabase.Client
}

// NewSupabaseValidator creates a validator backed by client
func NewSupabaseValidator(client *supabase.Client) *SupabaseValidator {
	return &SupabaseValidator{client: client}
}

func (v *SupabaseValidator) Validate(ctx context.Context, token string) (Identity, error) {
	user, err := v.client.GetUser(ctx, token)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) {
			return Identity{}, Unauthorized("Token validation failed: "+apiErr.Message, err)
		}
		return Identity{}, Unauthorized(fmt.Sprintf("Token validation failed: %v", err), err)
	}
	if user.ID == "" {
		return Identity{}, Unauthorized("Invalid token", nil)
	}
	return Identity{
		ID:       user.ID,
		Email:    user.Email,
		OrgID:    firstString(user.AppMetadata["org_id"], user.UserMetadata["org_id"]),
		Metadata: user.UserMetadata,
	}, nil
}

// LangSmithValidator checks API keys against the LangSmith whoami endpoint
type LangSmithValidator struct {
	apiURL     string
	httpClient *http.Client
}

// NewLangSmithValidator creates a validator for the API at apiURL
func NewLangSmithValidator(apiURL string, hc *http.Client) *LangSmithValidator {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &LangSmithValidator{apiURL: strings.TrimRight(apiURL, "/"), httpClient: hc}
}

func (v *LangSmithValidator) Validate(ctx context.Context, apiKey string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiURL+"/v1/whoami", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create whoami request: %w", err)
	}
	req.Header.Set("x-api-key", apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Identity{}, Unauthorized(fmt.Sprintf("API key validation failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Identity{}, Unauthorized("Invalid API key", fmt.Errorf("whoami returned %d", resp.StatusCode))
	}

	var who struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Organization struct {
			ID string `json:"id"`
		} `json:"organization"`
		Workspace struct {
			ID string `json:"id"`
		} `json:"workspace"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&who); err != nil || who.ID == "" {
		return Identity{}, Unauthorized("Unable to retrieve user information", err)
	}
	return Identity{
		ID:          who.ID,
		Email:       who.Email,
		OrgID:       who.Organization.ID,
		WorkspaceID: who.Workspace.ID,
	}, nil
}

// JWTValidator verifies HS256 tokens locally with a shared secret, such as
// the Supabase project JWT secret.
type JWTValidator struct {
	secret   []byte
	audience string
}

// NewJWTValidator creates a validator. An empty audience skips the aud check.
func NewJWTValidator(secret, audience string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), audience: audience}
}

// jwtClaims is the claim set Supabase issues
type jwtClaims struct {
	Email        string                 `json:"email"`
	OrgID        string                 `json:"org_id"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

func (v *JWTValidator) Validate(_ context.Context, token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwtClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Identity{}, Unauthorized("Invalid token", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, Unauthorized("Invalid token", errors.New("subject missing"))
	}
	return Identity{
		ID:       claims.Subject,
		Email:    claims.Email,
		OrgID:    firstString(claims.OrgID, claims.AppMetadata["org_id"]),
		Metadata: claims.UserMetadata,
	}, nil
}

// OIDCValidator verifies ID tokens issued by an OpenID Connect provider
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCValidator discovers the issuer's keys and returns a validator
// accepting ID tokens for clientID.
func NewOIDCValidator(ctx context.Context, issuer, clientID string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC issuer %s: %w", issuer, err)
	}
	return NewOIDCValidatorWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCValidatorWithVerifier wraps an existing verifier
func NewOIDCValidatorWithVerifier(verifier *oidc.IDTokenVerifier) *OIDCValidator {
	return &OIDCValidator{verifier: verifier}
}

func (v *OIDCValidator) Validate(ctx context.Context, token string) (Identity, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return Identity{}, Unauthorized("Invalid token", err)
	}

	var claims struct {
		Email string `json:"email"`
		OrgID string `json:"org_id"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, Unauthorized("Invalid token", err)
	}
	return Identity{
		ID:    idToken.Subject,
		Email: claims.Email,
		OrgID: claims.OrgID,
	}, nil
}

// FirstOf tries each validator in order and returns the first identity
// accepted. When all reject, the last rejection is returned.
func FirstOf(validators ...Validator) Validator {
	return ValidatorFunc(func(ctx context.Context, credential string) (Identity, error) {
		err := Unauthorized("Invalid token", nil)
		for _, v := range validators {
			id, verr := v.Validate(ctx, credential)
			if verr == nil {
				return id, nil
			}
			err = verr
		}
		return Identity{}, err
	})
}

func firstString(values ...interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
