package flow

import "testing"

func TestExtractProjectKey(t *testing.T) {
	tests := map[string]string{
		"":                           "DEMO",
		"a":                          "DEMO",
		"show PROJ issues":           "SHOW",
		"x ab-c PROJ1":               "PROJ1",
		"check verylongwordhere ops": "CHECK",
		"! ?? extraordinarily":       "DEMO",
	}
	for in, want := range tests {
		if got := ExtractProjectKey(in); got != want {
			t.Errorf("ExtractProjectKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractSearchQuery(t *testing.T) {
	tests := map[string]string{
		"Search for LangGraph examples": "langgraph examples",
		"please SEARCH FOR   mcp  ":     "mcp",
		"  list my repos  ":             "list my repos",
		"":                              "",
	}
	for in, want := range tests {
		if got := ExtractSearchQuery(in); got != want {
			t.Errorf("ExtractSearchQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
