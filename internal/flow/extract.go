package flow

import (
	"strings"
	"unicode"
)

// DefaultProjectKey is used when a request names no project
const DefaultProjectKey = "DEMO"

// ExtractProjectKey returns the first word of request that can be a Jira
// project key: 2 to 10 letters or digits, upper-cased.
func ExtractProjectKey(request string) string {
	for _, word := range strings.Fields(strings.ToUpper(request)) {
		n := len([]rune(word))
		if n < 2 || n > 10 {
			continue
		}
		if isAlnum(word) {
			return word
		}
	}
	return DefaultProjectKey
}

// ExtractSearchQuery returns the text following "search for", or the whole
// request when the phrase is absent. The phrase is matched case-insensitively
// and the query is returned lower-cased when it is found.
func ExtractSearchQuery(request string) string {
	lower := strings.ToLower(request)
	if _, after, ok := strings.Cut(lower, "search for"); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(request)
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
