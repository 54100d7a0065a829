package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/secrets"
)

var (
	secretsBackend string
	secretsRefresh string
	secretsExpiry  time.Duration
	secretsReveal  bool
)

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage per-user service tokens in the secret stores",
	}
	cmd.PersistentFlags().StringVar(&secretsBackend, "backend", "", "Backend to write to or delete from (default: first writable backend)")

	put := &cobra.Command{
		Use:   "put <user-id> <service> <token>",
		Short: "Store a service token for a user",
		Args:  cobra.ExactArgs(3),
		RunE:  runSecretsPut,
	}
	put.Flags().StringVar(&secretsRefresh, "refresh-token", "", "OAuth refresh token stored alongside the access token")
	put.Flags().DurationVar(&secretsExpiry, "expires-in", 0, "Access token lifetime, enables refresh before expiry")

	get := &cobra.Command{
		Use:   "get <user-id> <service>",
		Short: "Resolve a service token through the chain",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretsGet,
	}
	get.Flags().BoolVar(&secretsReveal, "reveal", false, "Print the token instead of a redacted form")

	del := &cobra.Command{
		Use:   "delete <user-id> <service>",
		Short: "Delete a service token",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretsDelete,
	}

	validate := &cobra.Command{
		Use:   "validate <user-id> <service>",
		Short: "Check a stored token against the service that issued it",
		Long: `Resolve the token through the chain and send it to the service's
validate_url. The command fails when no token is stored, the service has no
validation endpoint or the service rejects the token.`,
		Args: cobra.ExactArgs(2),
		RunE: runSecretsValidate,
	}

	cmd.AddCommand(put, get, del, validate)
	return cmd
}

func withChain(ctx context.Context, fn func(*secrets.Chain, gateway.Catalog, *logging.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := gateway.OpenCatalogStore(cfg.CatalogPath)
	if err != nil {
		return err
	}
	logger := newLogger()
	chain, cleanup, err := secrets.BuildChain(ctx, cfg, catalog.Catalog().EnvVars(), logger)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(chain, catalog.Catalog(), logger)
}

func runSecretsPut(cmd *cobra.Command, args []string) error {
	userID, service, token := args[0], args[1], args[2]
	rec := secrets.TokenRecord{AccessToken: token, RefreshToken: secretsRefresh}
	if secretsExpiry > 0 {
		rec.Expiry = time.Now().Add(secretsExpiry)
	}

	return withChain(cmd.Context(), func(chain *secrets.Chain, _ gateway.Catalog, logger *logging.Logger) error {
		backend, err := chain.Store(cmd.Context(), secretsBackend, userID, service, rec)
		if err != nil {
			return err
		}
		logger.Success("Stored %s token for %s in %s", service, userID, backend)
		return nil
	})
}

func runSecretsGet(cmd *cobra.Command, args []string) error {
	userID, service := args[0], args[1]
	return withChain(cmd.Context(), func(chain *secrets.Chain, _ gateway.Catalog, logger *logging.Logger) error {
		secret, ok := chain.Lookup(cmd.Context(), userID, service)
		if !ok {
			return fmt.Errorf("no %s token for %s in %v", service, userID, chain.Backends())
		}
		value := logging.Redact(secret.Record.AccessToken)
		if secretsReveal {
			value = secret.Record.AccessToken
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", secret.Backend, value)
		if secret.Record.HasExpiry() {
			fmt.Fprintf(cmd.OutOrStdout(), "expires\t%s\n", secret.Record.Expiry.Format(time.RFC3339))
		}
		return nil
	})
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	userID, service := args[0], args[1]
	return withChain(cmd.Context(), func(chain *secrets.Chain, _ gateway.Catalog, logger *logging.Logger) error {
		if err := chain.Delete(cmd.Context(), secretsBackend, userID, service); err != nil {
			return err
		}
		logger.Success("Deleted %s token for %s", service, userID)
		return nil
	})
}

func runSecretsValidate(cmd *cobra.Command, args []string) error {
	userID, service := args[0], args[1]
	return withChain(cmd.Context(), func(chain *secrets.Chain, catalog gateway.Catalog, logger *logging.Logger) error {
		backend, err := validateStoredToken(cmd.Context(), chain, catalog, nil, userID, service)
		if err != nil {
			return err
		}
		logger.Success("%s token for %s from %s is valid", service, userID, backend)
		return nil
	})
}

// validateStoredToken resolves the user's token for service and checks it
// against the service. It returns the backend the token came from.
func validateStoredToken(ctx context.Context, chain *secrets.Chain, catalog gateway.Catalog, client *http.Client, userID, service string) (string, error) {
	spec, ok := catalog[service]
	if !ok {
		return "", fmt.Errorf("unknown service %q", service)
	}
	secret, ok := chain.Lookup(ctx, userID, service)
	if !ok {
		return "", fmt.Errorf("no %s token for %s in %v", service, userID, chain.Backends())
	}
	if err := gateway.ValidateToken(ctx, client, spec, secret.Record.AccessToken); err != nil {
		return secret.Backend, err
	}
	return secret.Backend, nil
}
