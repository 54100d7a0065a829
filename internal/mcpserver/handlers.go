package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
)

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func authError(err error) *mcp.CallToolResult {
	var ue *identity.UnauthorizedError
	if errors.As(err, &ue) {
		return mcp.NewToolResultError("unauthorized: " + ue.Detail)
	}
	return mcp.NewToolResultError(err.Error())
}

// handleWhoami handles the whoami tool request
func (m *MCPServer) handleWhoami(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := m.session(ctx)
	if err != nil {
		return authError(err), nil
	}
	defer sess.Close()

	user := sess.User()
	claims := user.Claims()
	for _, svc := range user.Tokens.Services() {
		claims[svc+"_token"] = logging.Redact(user.Tokens.Token(svc))
	}
	claims["available_services"] = sess.AvailableServices()
	return jsonResult(claims)
}

// handleListServices handles the list_services tool request
func (m *MCPServer) handleListServices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := m.session(ctx)
	if err != nil {
		return authError(err), nil
	}
	defer sess.Close()

	type entry struct {
		Name      string `json:"name"`
		Transport string `json:"transport"`
		Access    bool   `json:"access"`
	}
	catalog := sess.Catalog()
	out := make([]entry, 0, len(catalog))
	for _, name := range catalog.Names() {
		out = append(out, entry{
			Name:      name,
			Transport: catalog[name].Transport,
			Access:    sess.User().Token(name) != "",
		})
	}
	return jsonResult(out)
}

// handleListTools handles the list_tools tool request
func (m *MCPServer) handleListTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	service, err := request.RequireString("service")
	if err != nil {
		return mcp.NewToolResultError("missing or invalid 'service' argument"), nil
	}

	sess, err := m.session(ctx)
	if err != nil {
		return authError(err), nil
	}
	defer sess.Close()

	tools, err := sess.ListTools(ctx, service)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tools)
}

// handleCallTool handles the call_tool request
func (m *MCPServer) handleCallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	service, err := request.RequireString("service")
	if err != nil {
		return mcp.NewToolResultError("missing or invalid 'service' argument"), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing or invalid 'name' argument"), nil
	}

	var toolArgs map[string]interface{}
	if raw, exists := request.GetArguments()["arguments"]; exists && raw != nil {
		var ok bool
		toolArgs, ok = raw.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("'arguments' must be an object"), nil
		}
	}

	sess, err := m.session(ctx)
	if err != nil {
		return authError(err), nil
	}
	defer sess.Close()

	result, err := sess.CallTool(ctx, service, name, toolArgs)
	if err != nil {
		m.logger.Warning("call_tool %s/%s failed: %v", service, name, err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(gateway.ResultText(result)), nil
}

// handleRunFlow handles the run_flow request
func (m *MCPServer) handleRunFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := m.session(ctx)
	if err != nil {
		return authError(err), nil
	}
	defer sess.Close()

	state, err := m.graph.Run(ctx, sess, request.GetString("request", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"run":      state,
		"metadata": sess.User().OwnerMetadata(state.StartedAt),
	})
}
