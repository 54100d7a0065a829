package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authgate/internal/httpapi"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

var serveListenAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authenticated HTTP API",
		Long: `Run the HTTP API in front of the downstream MCP tool servers.

Endpoints:
  GET  /healthz                               liveness, no auth
  GET  /metrics                               Prometheus metrics, no auth
  GET  /v1/whoami                             caller identity (tokens redacted)
  GET  /v1/services                           catalog and per-service access
  GET  /v1/services/{service}/tools           list downstream tools
  POST /v1/services/{service}/tools/{tool}    call a downstream tool
  POST /v1/runs                               run the multi-service flow

The catalog file, if any, is watched and reloaded on change.`,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveListenAddr, "listen-addr", "", "Listen address (default :2024, env MCP_AUTHGATE_LISTEN_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	setupSignalHandler(cancel, false)

	logger := newLogger()
	metrics.Init()

	rt, err := buildRuntime(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	rt.watchCatalog(ctx)

	addr := rt.cfg.ListenAddr
	if serveListenAddr != "" {
		addr = serveListenAddr
	}

	srv := httpapi.New(httpapi.Options{
		Auth:           rt.auth,
		Factory:        rt.factory,
		Logger:         logger,
		Version:        version,
		RateLimitRPS:   rt.cfg.RateLimit.RPS,
		RateLimitBurst: rt.cfg.RateLimit.Burst,
		RequestTimeout: rt.cfg.RequestTimeout,

		TrustForwardedFor: rt.cfg.RateLimit.TrustForwardedFor,
	})

	logger.Info("Starting mcp-authgate %s (services: %v)", version, rt.catalog.Names())
	if err := srv.Serve(ctx, addr); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}
