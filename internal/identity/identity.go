// Package identity validates inbound caller credentials and builds the
// per-request AuthUser carrying the caller's identity and service tokens.
package identity

import (
	"context"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/secrets"
)

// Identity is the validated representation of the calling user
type Identity struct {
	ID          string
	Email       string
	OrgID       string
	WorkspaceID string
	// Metadata carries provider-specific user metadata, read-only
	Metadata map[string]interface{}
}

// AuthUser is the result of a successful authentication. It lives for a
// single request and is never stored.
type AuthUser struct {
	Identity        Identity
	Tokens          secrets.UserTokens
	AuthenticatedAt time.Time
	// Credential is the inbound credential kind that authenticated the user
	Credential Kind
}

// Token returns the caller's token for service, or ""
func (u *AuthUser) Token(service string) string {
	if u == nil {
		return ""
	}
	return u.Tokens.Token(service)
}

// Secrets returns the raw service tokens held for the user, for log masking
// scoped to the request.
func (u *AuthUser) Secrets() []string {
	if u == nil {
		return nil
	}
	var out []string
	for _, rec := range u.Tokens {
		out = append(out, rec.AccessToken, rec.RefreshToken)
	}
	return out
}

// Claims renders the user object returned to callers: identity, email and
// org_id, plus one "<service>_token" field per resolved token and the
// earliest token expiry if any token carries one.
func (u *AuthUser) Claims() map[string]interface{} {
	c := map[string]interface{}{
		"identity":         u.Identity.ID,
		"email":            u.Identity.Email,
		"org_id":           u.Identity.OrgID,
		"authenticated_at": u.AuthenticatedAt.UTC().Format(time.RFC3339),
	}
	if u.Identity.WorkspaceID != "" {
		c["workspace_id"] = u.Identity.WorkspaceID
	}

	var earliest time.Time
	for _, svc := range u.Tokens.Services() {
		rec := u.Tokens[svc]
		c[svc+"_token"] = rec.AccessToken
		if rec.HasExpiry() && (earliest.IsZero() || rec.Expiry.Before(earliest)) {
			earliest = rec.Expiry
		}
	}
	if !earliest.IsZero() {
		c["token_expiry"] = earliest.UTC().Format(time.RFC3339)
	}
	return c
}

// OwnerMetadata returns the tags attached to a resource created on behalf
// of the user at createdAt, so that it can later be filtered by owner.
func (u *AuthUser) OwnerMetadata(createdAt time.Time) map[string]string {
	return map[string]string{
		"owner":      u.Identity.ID,
		"org_id":     u.Identity.OrgID,
		"created_at": createdAt.UTC().Format(time.RFC3339),
	}
}

type userContextKey struct{}

// ContextWithUser attaches the authenticated user to the context
func ContextWithUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the authenticated user, if any
func UserFromContext(ctx context.Context) (*AuthUser, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok || u == nil {
		return nil, false
	}
	return u, true
}
