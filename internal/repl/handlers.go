package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-authgate/internal/logging"
)

// PrettyJSON pretty-prints v, falling back to %+v
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// parseToolArgs parses JSON arguments for a tool call
func parseToolArgs(w io.Writer, argsStr, service, toolName string) (map[string]interface{}, error) {
	if argsStr == "" {
		return nil, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
		fmt.Fprintln(w, "Error: Arguments must be valid JSON")
		fmt.Fprintf(w, "Example: call %s %s {\"param1\": \"value1\", \"param2\": 123}\n", service, toolName)
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}

// displayTextContent displays text content, pretty-printing JSON if possible
func displayTextContent(w io.Writer, text string) {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(text), &jsonData); err == nil {
		fmt.Fprintln(w, PrettyJSON(jsonData))
	} else {
		fmt.Fprintln(w, text)
	}
}

// displayToolResult displays the result of a tool call
func displayToolResult(w io.Writer, result *mcp.CallToolResult) {
	fmt.Fprintln(w, "Result:")
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			displayTextContent(w, textContent.Text)
		} else if imageContent, ok := mcp.AsImageContent(content); ok {
			fmt.Fprintf(w, "[Image: MIME type %s, %d bytes]\n", imageContent.MIMEType, len(imageContent.Data))
		}
	}
}

func (r *REPL) handleWhoami() error {
	sess, err := r.session()
	if err != nil {
		return err
	}
	user := sess.User()
	claims := user.Claims()
	for _, svc := range user.Tokens.Services() {
		claims[svc+"_token"] = logging.Redact(user.Tokens.Token(svc))
	}
	fmt.Fprintln(r.out, PrettyJSON(claims))
	return nil
}

func (r *REPL) handleServices() error {
	sess, err := r.session()
	if err != nil {
		return err
	}
	catalog := sess.Catalog()
	fmt.Fprintf(r.out, "Services (%d):\n", len(catalog))
	for i, name := range catalog.Names() {
		access := "no access"
		if sess.User().Token(name) != "" {
			access = "access"
		}
		fmt.Fprintf(r.out, "  %d. %-15s %-16s %-10s %s\n", i+1, name, catalog[name].Transport, access, catalog[name].URL)
	}
	return nil
}

func (r *REPL) listTools(ctx context.Context, service string) ([]mcp.Tool, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	tools, err := sess.ListTools(ctx, service)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	r.mu.Lock()
	r.toolNames[service] = names
	r.mu.Unlock()
	return tools, nil
}

// handleListTools displays the tools of a service
func (r *REPL) handleListTools(ctx context.Context, service string) error {
	tools, err := r.listTools(ctx, service)
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		fmt.Fprintf(r.out, "No tools available on %s.\n", service)
		return nil
	}
	fmt.Fprintf(r.out, "Available tools on %s (%d):\n", service, len(tools))
	for i, tool := range tools {
		fmt.Fprintf(r.out, "  %d. %-30s - %s\n", i+1, tool.Name, tool.Description)
	}
	return nil
}

// handleDescribe shows detailed information about a tool
func (r *REPL) handleDescribe(ctx context.Context, service, name string) error {
	tools, err := r.listTools(ctx, service)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		if tool.Name == name {
			fmt.Fprintf(r.out, "Tool: %s/%s\n", service, tool.Name)
			fmt.Fprintf(r.out, "Description: %s\n", tool.Description)
			fmt.Fprintln(r.out, "Input Schema:")
			fmt.Fprintln(r.out, PrettyJSON(tool.InputSchema))
			return nil
		}
	}
	return fmt.Errorf("tool not found: %s/%s", service, name)
}

// handleCallTool executes a tool with the given arguments
func (r *REPL) handleCallTool(ctx context.Context, service, toolName, argsStr string) error {
	sess, err := r.session()
	if err != nil {
		return err
	}

	args, err := parseToolArgs(r.out, argsStr, service, toolName)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Executing tool: %s/%s...\n", service, toolName)
	result, err := sess.CallTool(ctx, service, toolName, args)
	if err != nil {
		return fmt.Errorf("tool execution failed: %w", err)
	}

	displayToolResult(r.out, result)
	return nil
}

// handleRun runs the multi-service flow and prints its messages
func (r *REPL) handleRun(ctx context.Context, request string) error {
	sess, err := r.session()
	if err != nil {
		return err
	}

	state, err := r.graph.Run(ctx, sess, request)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Fprintf(r.out, "Run %s\n", state.RunID)
	for _, msg := range state.Messages {
		fmt.Fprintf(r.out, "  %s\n", msg)
	}
	if len(state.Errors) > 0 {
		fmt.Fprintln(r.out, "Errors:")
		for _, e := range state.Errors {
			fmt.Fprintf(r.out, "  %s\n", e)
		}
	}
	return nil
}
