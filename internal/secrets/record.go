package secrets

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// TokenRecord is a single service credential held for the duration of a request.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// ParseRecord decodes a stored secret value. Values are either a bare token
// (personal access tokens) or a JSON object carrying refresh metadata.
func ParseRecord(value string) TokenRecord {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") {
		var rec TokenRecord
		if err := json.Unmarshal([]byte(trimmed), &rec); err == nil {
			rec.AccessToken = strings.TrimSpace(rec.AccessToken)
			// a record with a blank access_token holds no token
			if rec.AccessToken != "" || strings.Contains(trimmed, `"access_token"`) {
				return rec
			}
		}
	}
	return TokenRecord{AccessToken: trimmed}
}

// Encode renders the record in the form ParseRecord reads back. Records
// without refresh metadata encode as the bare token.
func (r TokenRecord) Encode() string {
	if r.RefreshToken == "" && r.Expiry.IsZero() {
		return r.AccessToken
	}
	b, err := json.Marshal(r)
	if err != nil {
		return r.AccessToken
	}
	return string(b)
}

// HasExpiry reports whether the record carries an expiry time
func (r TokenRecord) HasExpiry() bool {
	return !r.Expiry.IsZero()
}

// Expired reports whether the token is past its expiry at now.
// Tokens without an expiry never expire.
func (r TokenRecord) Expired(now time.Time) bool {
	return r.HasExpiry() && !now.Before(r.Expiry)
}

// ExpiresWithin reports whether the token expires within d of now
func (r TokenRecord) ExpiresWithin(d time.Duration, now time.Time) bool {
	return r.HasExpiry() && !now.Add(d).Before(r.Expiry)
}

// UserTokens maps service names to the caller's token for that service.
// Values are never mutated in place: With and Without return new maps so a
// refreshed token replaces the old one without aliasing.
type UserTokens map[string]TokenRecord

// Token returns the access token for service, or "" when absent
func (t UserTokens) Token(service string) string {
	return t[service].AccessToken
}

// Has reports whether a non-empty token is held for service
func (t UserTokens) Has(service string) bool {
	return t[service].AccessToken != ""
}

// Services returns the services with a token, sorted
func (t UserTokens) Services() []string {
	out := make([]string, 0, len(t))
	for svc, rec := range t {
		if rec.AccessToken != "" {
			out = append(out, svc)
		}
	}
	sort.Strings(out)
	return out
}

// With returns a copy of t with service set to rec
func (t UserTokens) With(service string, rec TokenRecord) UserTokens {
	out := make(UserTokens, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[service] = rec
	return out
}

// Without returns a copy of t without service
func (t UserTokens) Without(service string) UserTokens {
	out := make(UserTokens, len(t))
	for k, v := range t {
		if k != service {
			out[k] = v
		}
	}
	return out
}
