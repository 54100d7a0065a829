package identity

import (
	"context"
	"testing"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/secrets"
)

func TestClaims(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	u := &AuthUser{
		Identity: Identity{ID: "user_123", Email: "u@example.com", OrgID: "org_1"},
		Tokens: secrets.UserTokens{
			"github": {AccessToken: "gh", Expiry: at.Add(2 * time.Hour)},
			"jira":   {AccessToken: "jr", Expiry: at.Add(time.Hour)},
			"slack":  {},
		},
		AuthenticatedAt: at,
	}

	c := u.Claims()
	want := map[string]interface{}{
		"identity":         "user_123",
		"email":            "u@example.com",
		"org_id":           "org_1",
		"github_token":     "gh",
		"jira_token":       "jr",
		"authenticated_at": "2025-03-01T10:00:00Z",
		"token_expiry":     "2025-03-01T11:00:00Z",
	}
	for k, v := range want {
		if c[k] != v {
			t.Errorf("claims[%q] = %v, want %v", k, c[k], v)
		}
	}
	if _, ok := c["slack_token"]; ok {
		t.Error("empty tokens must not appear in claims")
	}
	if _, ok := c["workspace_id"]; ok {
		t.Error("empty workspace must be omitted")
	}
}

func TestOwnerMetadata(t *testing.T) {
	u := &AuthUser{Identity: Identity{ID: "u1", OrgID: "o1"}}
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	m := u.OwnerMetadata(at)
	if m["owner"] != "u1" || m["org_id"] != "o1" || m["created_at"] != "2025-03-04T04:06:07Z" || len(m) != 3 {
		t.Errorf("OwnerMetadata() = %v", m)
	}
}

func TestUserContext(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("empty context should have no user")
	}

	u := &AuthUser{Identity: Identity{ID: "u1"}}
	got, ok := UserFromContext(ContextWithUser(context.Background(), u))
	if !ok || got != u {
		t.Error("user not round-tripped through context")
	}

	var nilUser *AuthUser
	if nilUser.Token("github") != "" {
		t.Error("nil user has no tokens")
	}
}
