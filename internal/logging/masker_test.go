package logging

import (
	"strings"
	"testing"
)

func TestMaskerMask(t *testing.T) {
	m := NewMasker()
	m.AddSecret("alpha-secret")
	m.AddSecret("")

	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"token=alpha-secret", "token=***"},
		{"alpha-secret alpha-secret", "*** ***"},
	}
	for _, tt := range tests {
		if got := m.Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskerMaskJSON(t *testing.T) {
	m := NewMasker()
	m.AddSecret("s3cr3t-token")

	got := m.MaskJSON(`{"headers":{"Authorization":"Bearer s3cr3t-token"},"n":1,"list":["s3cr3t-token"]}`)
	if strings.Contains(got, "s3cr3t-token") {
		t.Fatalf("secret not masked: %s", got)
	}
	if !strings.Contains(got, `"n":1`) {
		t.Errorf("numbers should be preserved: %s", got)
	}

	if got := m.MaskJSON("not json s3cr3t-token"); got != "not json ***" {
		t.Errorf("fallback masking failed: %q", got)
	}
}

func TestRedact(t *testing.T) {
	tests := map[string]string{
		"":                         "",
		"short":                    "***",
		"12345678":                 "***",
		"ghp_abcdefghijklmnopqrst": "ghp_***",
	}
	for in, want := range tests {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNilMasker(t *testing.T) {
	var m *Masker
	m.AddSecret("x")
	if got := m.Mask("x"); got != "x" {
		t.Errorf("nil masker should pass through, got %q", got)
	}
}
