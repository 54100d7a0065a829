package gateway

import (
	"net/http"
)

// headerRoundTripper sets a fixed set of headers on every outgoing request
type headerRoundTripper struct {
	transport http.RoundTripper
	headers   map[string]string
}

// newHeaderRoundTripper creates a RoundTripper that injects headers into
// every request sent to the downstream MCP server
func newHeaderRoundTripper(headers map[string]string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &headerRoundTripper{
		transport: base,
		headers:   headers,
	}
}

// RoundTrip implements the http.RoundTripper interface
func (rt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())
	for k, v := range rt.headers {
		clonedReq.Header.Set(k, v)
	}
	return rt.transport.RoundTrip(clonedReq)
}
