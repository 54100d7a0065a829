package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

// ToolClient is an initialized MCP client for one downstream service
type ToolClient struct {
	service string
	client  *client.Client
	logger  *logging.Logger

	mu        sync.RWMutex
	toolCache []mcp.Tool
}

// ToolClientOptions tune how ToolClient connects
type ToolClientOptions struct {
	Version string
	Logger  *logging.Logger
	// Base is the transport under the header-injecting round tripper
	Base    http.RoundTripper
	Timeout time.Duration
}

// Connect creates the MCP client for cfg and performs the initialize
// handshake. Failures are returned as *OperationError.
func Connect(ctx context.Context, cfg ServiceClientConfig, opts ToolClientOptions) (*ToolClient, error) {
	opts.Logger.Debug("Connecting to %s MCP server at %s using %s transport", cfg.Service, cfg.URL, cfg.Transport)

	httpClient := &http.Client{
		Transport: newHeaderRoundTripper(cfg.Headers, opts.Base),
		Timeout:   opts.Timeout,
	}

	var (
		mcpClient *client.Client
		err       error
	)
	switch cfg.Transport {
	case TransportStreamableHTTP:
		mcpClient, err = client.NewStreamableHttpClient(cfg.URL, transport.WithHTTPBasicClient(httpClient))
	case TransportSSE:
		mcpClient, err = client.NewSSEMCPClient(cfg.URL, client.WithHTTPClient(httpClient))
	default:
		err = fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, &OperationError{Service: cfg.Service, Cause: fmt.Errorf("failed to create client: %w", err)}
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, &OperationError{Service: cfg.Service, Cause: fmt.Errorf("failed to start client: %w", err)}
	}

	tc := &ToolClient{
		service: cfg.Service,
		client:  mcpClient,
		logger:  opts.Logger,
	}
	if err := tc.initialize(ctx, opts.Version); err != nil {
		_ = mcpClient.Close()
		return nil, &OperationError{Service: cfg.Service, Cause: err}
	}
	return tc, nil
}

// Service returns the name of the service this client talks to
func (c *ToolClient) Service() string { return c.service }

// initialize performs the MCP protocol handshake
func (c *ToolClient) initialize(ctx context.Context, version string) error {
	if version == "" {
		version = "dev"
	}
	req := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "mcp-authgate",
				Version: version,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	c.logger.Request("initialize", req.Params)

	result, err := c.client.Initialize(ctx, req)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Response("initialize", result)
	c.logger.Debug("Connected to %s (%s %s)", c.service, result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}

// ListTools returns the tools exposed by the service. The first successful
// listing is cached for the lifetime of the client.
func (c *ToolClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.RLock()
	cached := c.toolCache
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	req := mcp.ListToolsRequest{}
	c.logger.Request("tools/list", req.Params)

	result, err := c.client.ListTools(ctx, req)
	if err != nil {
		return nil, &OperationError{Service: c.service, Cause: fmt.Errorf("failed to list tools: %w", err)}
	}
	c.logger.Response("tools/list", result)

	tools := result.Tools
	if tools == nil {
		tools = []mcp.Tool{}
	}
	c.mu.Lock()
	c.toolCache = tools
	c.mu.Unlock()
	return tools, nil
}

// CallTool invokes tool once. Transport failures and tool results flagged as
// errors are both returned as *OperationError.
func (c *ToolClient) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	c.logger.Request("tools/call", req.Params)

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(c.service, metrics.ResultFailure).Inc()
		return nil, &OperationError{Service: c.service, Tool: tool, Cause: err}
	}
	c.logger.Response("tools/call", result)

	if result.IsError {
		metrics.ToolCalls.WithLabelValues(c.service, metrics.ResultFailure).Inc()
		return result, &OperationError{Service: c.service, Tool: tool, Cause: fmt.Errorf("%s", ResultText(result))}
	}
	metrics.ToolCalls.WithLabelValues(c.service, metrics.ResultSuccess).Inc()
	return result, nil
}

// Close closes the underlying MCP client
func (c *ToolClient) Close() error {
	return c.client.Close()
}

// ResultText concatenates the text content of a tool result
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var out string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			if out != "" {
				out += "\n"
			}
			out += text.Text
		}
	}
	return out
}
