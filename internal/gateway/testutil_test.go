package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/secrets"
)

// mockToolServer is a downstream MCP server that requires a bearer token
// and records the headers it receives
type mockToolServer struct {
	*httptest.Server
	token string

	mu      sync.Mutex
	headers []http.Header
}

func newMockToolServer(t *testing.T, token string) *mockToolServer {
	t.Helper()

	s := server.NewMCPServer("mock-tools", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo the arguments back"),
		mcp.WithString("message"),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(req.GetArguments())
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	})
	s.AddTool(mcp.NewTool("fail",
		mcp.WithDescription("Always fails"),
	), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("upstream exploded"), nil
	})

	handler := server.NewStreamableHTTPServer(s)
	m := &mockToolServer{token: token}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.headers = append(m.headers, r.Header.Clone())
		m.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+m.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockToolServer) lastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.headers) == 0 {
		return nil
	}
	return m.headers[len(m.headers)-1]
}

func testUser(tokens secrets.UserTokens) *identity.AuthUser {
	return &identity.AuthUser{
		Identity: identity.Identity{ID: "user_123", Email: "u@example.com", OrgID: "org_1"},
		Tokens:   tokens,
	}
}

func testCatalog(urls map[string]string) Catalog {
	c := Catalog{}
	for name, url := range urls {
		c[name] = ServiceSpec{Name: name, URL: url, Transport: TransportStreamableHTTP}
	}
	return c
}
