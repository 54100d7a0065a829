package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authgate/internal/logging"
)

var (
	version  string
	verbose  bool
	noColor  bool
	jsonRPC  bool
	catalogF string
	backends []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-authgate",
	Short: "Authenticating permission gate for MCP tool servers",
	Long: `mcp-authgate validates caller credentials, resolves the caller's
per-service tokens and only lets requests through to the MCP tool servers
the caller actually holds a token for.

Credentials are accepted as an Authorization: Bearer token (Supabase JWT or
OIDC ID token) or as an x-api-key header (LangSmith API key).

Service tokens are looked up through a resolver chain, vault stores first,
then the cloud secrets manager, then environment variables. Tokens that
expire within the refresh lead (10 minutes by default) are renewed before
they are handed to a downstream client.

The tool supports multiple modes:
- serve: HTTP API with health, metrics and per-service tool endpoints
- mcp-server: act as an MCP server for AI assistants (stdio or streamable-http)
- repl: interactive exploration of the services you can reach
- token, seed-users, secrets, check: operator utilities

Configuration is read from the environment, e.g. SUPABASE_URL,
SUPABASE_ANON_KEY, SUPABASE_JWT_SECRET, SUPABASE_DB_URL, VAULT_ADDR,
AWS_REGION and MCP_AUTHGATE_SECRET_BACKENDS.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonRPC, "json-rpc", false, "Enable full JSON-RPC message logging for downstream calls")
	rootCmd.PersistentFlags().StringVar(&catalogF, "catalog", "", "Service catalog YAML file (default: built-in catalog, env MCP_AUTHGATE_CATALOG)")
	rootCmd.PersistentFlags().StringSliceVar(&backends, "secret-backends", nil, "Secret resolver chain order (pgvault, hcvault, aws, keyring, env)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMCPServerCmd(),
		newREPLCmd(),
		newTokenCmd(),
		newSeedUsersCmd(),
		newSecretsCmd(),
		newCheckCmd(),
		newSelfUpdateCmd(),
	)
}

func newLogger() *logging.Logger {
	return logging.NewLogger(verbose, !noColor, jsonRPC)
}

// setupSignalHandler sets up graceful shutdown on interrupt signals.
// quiet suppresses the shutdown notice, stdout belongs to the protocol in
// stdio mode.
func setupSignalHandler(cancel context.CancelFunc, quiet bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if !quiet {
			fmt.Println("\nReceived interrupt signal, shutting down gracefully...")
		}
		cancel()
	}()
}
