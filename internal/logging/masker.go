package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const maskReplacement = "***"

// Masker replaces registered secret values with "***".
type Masker struct {
	mu      sync.RWMutex
	secrets map[string]struct{}
}

// NewMasker creates an empty masker.
func NewMasker() *Masker {
	return &Masker{secrets: make(map[string]struct{})}
}

// AddSecret registers a value to be masked. Empty values are ignored.
func (m *Masker) AddSecret(value string) {
	if m == nil || value == "" {
		return
	}
	m.mu.Lock()
	m.secrets[value] = struct{}{}
	m.mu.Unlock()
}

// Mask replaces all known secrets in s.
func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for secret := range m.secrets {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, maskReplacement)
		}
	}
	return s
}

// MaskMap returns a copy of data with secrets masked in every string value.
func (m *Masker) MaskMap(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for k, v := range data {
		result[k] = m.maskValue(v)
	}
	return result
}

func (m *Masker) maskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return m.Mask(val)
	case map[string]interface{}:
		return m.MaskMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = m.maskValue(item)
		}
		return out
	case json.Number, bool, float64, nil:
		return val
	default:
		return m.Mask(fmt.Sprintf("%v", val))
	}
}

// MaskJSON masks secrets inside a JSON document, falling back to plain
// string masking when the input does not parse.
func (m *Masker) MaskJSON(s string) string {
	var data interface{}
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return m.Mask(s)
	}
	out, err := json.Marshal(m.maskValue(data))
	if err != nil {
		return m.Mask(s)
	}
	return string(out)
}

// Redact renders a short, non-reversible hint of a secret for display,
// e.g. "ghp_***". Values of eight characters or fewer are fully hidden.
func Redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return maskReplacement
	}
	return value[:4] + maskReplacement
}
