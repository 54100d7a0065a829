// Package mcpserver exposes the gateway itself as an MCP server so that MCP
// clients can reach downstream services through the permission gate.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-authgate/internal/flow"
	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
)

// Authenticator turns request headers into an authenticated user
type Authenticator interface {
	Authenticate(ctx context.Context, h http.Header) (*identity.AuthUser, error)
}

// Config configures an MCPServer
type Config struct {
	Auth    Authenticator
	Factory *gateway.Factory
	Graph   *flow.Graph
	Logger  *logging.Logger
	Version string
	// Transport is stdio or streamable-http
	Transport string
	// StdioHeaders carry the credential used for every stdio call
	StdioHeaders http.Header
}

// MCPServer wraps the gateway and exposes it via MCP
type MCPServer struct {
	auth            Authenticator
	factory         *gateway.Factory
	graph           *flow.Graph
	logger          *logging.Logger
	mcpServer       *server.MCPServer
	serverTransport string
	stdioHeaders    http.Header
}

type headersKey struct{}

// NewMCPServer creates a new MCP server that exposes gateway functionality
func NewMCPServer(cfg Config) *MCPServer {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	mcpServer := server.NewMCPServer(
		"mcp-authgate",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	graph := cfg.Graph
	if graph == nil {
		graph = flow.NewGraph(cfg.Logger)
	}

	ms := &MCPServer{
		auth:            cfg.Auth,
		factory:         cfg.Factory,
		graph:           graph,
		logger:          cfg.Logger,
		mcpServer:       mcpServer,
		serverTransport: cfg.Transport,
		stdioHeaders:    cfg.StdioHeaders,
	}

	ms.registerTools()
	return ms
}

// Handler returns the streamable-http handler. Every HTTP request is
// authenticated from its own headers.
func (m *MCPServer) Handler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		m.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return context.WithValue(ctx, headersKey{}, r.Header.Clone())
		}),
	)
}

// Start starts the MCP server using stdio or streamable-http transport
func (m *MCPServer) Start(ctx context.Context, listenAddr string) error {
	switch m.serverTransport {
	case "stdio":
		stdio := server.NewStdioServer(m.mcpServer)
		stdio.SetContextFunc(func(ctx context.Context) context.Context {
			return context.WithValue(ctx, headersKey{}, m.stdioHeaders)
		})
		return stdio.Listen(ctx, os.Stdin, os.Stdout)
	case "streamable-http":
		httpServer := m.Handler()
		errCh := make(chan error, 1)
		go func() {
			m.logger.Info("MCP server listening on %s/mcp", listenAddr)
			errCh <- httpServer.Start(listenAddr)
		}()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			return httpServer.Shutdown(context.Background())
		}
	default:
		return fmt.Errorf("unsupported server transport: %s", m.serverTransport)
	}
}

// registerTools registers all MCP tools
func (m *MCPServer) registerTools() {
	whoamiTool := mcp.NewTool("whoami",
		mcp.WithDescription("Show the authenticated identity and which services it can reach"),
	)
	m.mcpServer.AddTool(whoamiTool, m.handleWhoami)

	listServicesTool := mcp.NewTool("list_services",
		mcp.WithDescription("List downstream services and whether the caller has access"),
	)
	m.mcpServer.AddTool(listServicesTool, m.handleListServices)

	listToolsTool := mcp.NewTool("list_tools",
		mcp.WithDescription("List the tools of a downstream service"),
		mcp.WithString("service",
			mcp.Required(),
			mcp.Description("Name of the service"),
		),
	)
	m.mcpServer.AddTool(listToolsTool, m.handleListTools)

	callToolTool := mcp.NewTool("call_tool",
		mcp.WithDescription("Execute a tool on a downstream service with the caller's credentials"),
		mcp.WithString("service",
			mcp.Required(),
			mcp.Description("Name of the service"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the tool to call"),
		),
		mcp.WithObject("arguments",
			mcp.Description("Arguments to pass to the tool (as JSON object)"),
		),
	)
	m.mcpServer.AddTool(callToolTool, m.handleCallTool)

	runFlowTool := mcp.NewTool("run_flow",
		mcp.WithDescription("Run the multi-service flow for a request"),
		mcp.WithString("request",
			mcp.Description("Free-form request, e.g. \"search for LangGraph examples\""),
		),
	)
	m.mcpServer.AddTool(runFlowTool, m.handleRunFlow)
}

// session authenticates the caller of the current tool call
func (m *MCPServer) session(ctx context.Context) (*gateway.Session, error) {
	h, _ := ctx.Value(headersKey{}).(http.Header)
	if h == nil {
		h = http.Header{}
	}
	user, err := m.auth.Authenticate(ctx, h)
	if err != nil {
		return nil, err
	}
	return m.factory.NewSession(user), nil
}
