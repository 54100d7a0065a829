package secrets

import (
	"testing"
	"time"
)

func TestParseRecord(t *testing.T) {
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  TokenRecord
	}{
		{"bare token", "ghp_abc", TokenRecord{AccessToken: "ghp_abc"}},
		{"bare token with whitespace", "  ghp_abc\n", TokenRecord{AccessToken: "ghp_abc"}},
		{
			"json record",
			`{"access_token":"a","refresh_token":"r","expiry":"2030-01-02T03:04:05Z"}`,
			TokenRecord{AccessToken: "a", RefreshToken: "r", Expiry: expiry},
		},
		{"json with blank access token", `{"access_token":"  ","refresh_token":"r"}`, TokenRecord{RefreshToken: "r"}},
		{"json without access token is opaque", `{"foo":"bar"}`, TokenRecord{AccessToken: `{"foo":"bar"}`}},
		{"broken json is opaque", `{not json`, TokenRecord{AccessToken: `{not json`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRecord(tt.value)
			if got.AccessToken != tt.want.AccessToken || got.RefreshToken != tt.want.RefreshToken || !got.Expiry.Equal(tt.want.Expiry) {
				t.Errorf("ParseRecord(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestEncodeBareToken(t *testing.T) {
	if got := (TokenRecord{AccessToken: "plain"}).Encode(); got != "plain" {
		t.Errorf("Encode() = %q", got)
	}
	rec := TokenRecord{AccessToken: "a", RefreshToken: "r", Expiry: time.Unix(1900000000, 0).UTC()}
	back := ParseRecord(rec.Encode())
	if back.AccessToken != "a" || back.RefreshToken != "r" || !back.Expiry.Equal(rec.Expiry) {
		t.Errorf("Encode/ParseRecord mismatch: %+v", back)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	noExpiry := TokenRecord{AccessToken: "a"}
	if noExpiry.Expired(now) || noExpiry.ExpiresWithin(time.Hour, now) {
		t.Error("records without expiry never expire")
	}

	soon := TokenRecord{AccessToken: "a", Expiry: now.Add(5 * time.Minute)}
	if soon.Expired(now) {
		t.Error("not yet expired")
	}
	if !soon.ExpiresWithin(10*time.Minute, now) {
		t.Error("expires within the 10 minute window")
	}
	if soon.ExpiresWithin(time.Minute, now) {
		t.Error("does not expire within one minute")
	}

	past := TokenRecord{AccessToken: "a", Expiry: now}
	if !past.Expired(now) {
		t.Error("a token is expired at its expiry instant")
	}
}

func TestUserTokensCopyOnWrite(t *testing.T) {
	orig := UserTokens{"github": {AccessToken: "old"}}

	updated := orig.With("github", TokenRecord{AccessToken: "new"})
	if orig.Token("github") != "old" {
		t.Fatal("With must not mutate the receiver")
	}
	if updated.Token("github") != "new" {
		t.Fatal("With must set the new record")
	}

	removed := updated.Without("github")
	if removed.Has("github") || !updated.Has("github") {
		t.Fatal("Without must copy")
	}

	var empty UserTokens
	if empty.Has("github") || empty.Token("github") != "" || len(empty.Services()) != 0 {
		t.Error("nil UserTokens should behave as empty")
	}
}
