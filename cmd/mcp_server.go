package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authgate/internal/mcpserver"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

var (
	serverTransport string
	mcpListenAddr   string
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Expose the gate as an MCP server",
		Long: `Run mcp-authgate as an MCP server so AI assistants can reach the
downstream services through the permission gate.

With streamable-http every request is authenticated from its own
Authorization or x-api-key header. With stdio the credential is read once
from MCP_AUTHGATE_TOKEN (bearer) or MCP_AUTHGATE_API_KEY.`,
		RunE: runMCPServer,
	}
	cmd.Flags().StringVar(&serverTransport, "server-transport", transportStdio, "Transport protocol for the MCP server itself (stdio, streamable-http)")
	cmd.Flags().StringVar(&mcpListenAddr, "listen-addr", ":8899", "Listen address for streamable-http server (path is fixed to /mcp)")
	return cmd
}

// credentialHeaders builds request headers from the environment credential
func credentialHeaders() http.Header {
	h := http.Header{}
	if token := os.Getenv("MCP_AUTHGATE_TOKEN"); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	if key := os.Getenv("MCP_AUTHGATE_API_KEY"); key != "" {
		h.Set("X-Api-Key", key)
	}
	return h
}

// runMCPServer runs the gate in MCP server mode
func runMCPServer(cmd *cobra.Command, args []string) error {
	if serverTransport != transportStdio && serverTransport != transportStreamableHTTP {
		return fmt.Errorf("unsupported server transport '%s' (stdio, streamable-http)", serverTransport)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stdio := serverTransport == transportStdio
	setupSignalHandler(cancel, stdio)

	logger := newLogger()
	if stdio {
		// stdout carries the protocol
		logger.SetWriter(os.Stderr)
	}
	metrics.Init()

	rt, err := buildRuntime(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	rt.watchCatalog(ctx)

	server := mcpserver.NewMCPServer(mcpserver.Config{
		Auth:         rt.auth,
		Factory:      rt.factory,
		Logger:       logger,
		Version:      version,
		Transport:    serverTransport,
		StdioHeaders: credentialHeaders(),
	})

	logger.Info("Starting mcp-authgate MCP server (transport: %s)...", serverTransport)
	addr := mcpListenAddr
	if !stdio && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
