package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/config"
	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/refresh"
	"github.com/giantswarm/mcp-authgate/internal/secrets"
	"github.com/giantswarm/mcp-authgate/internal/supabase"
)

// runtime is the wired component graph shared by serve, mcp-server and repl
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	catalog *gateway.CatalogStore
	chain   *secrets.Chain
	auth    *identity.Authenticator
	factory *gateway.Factory
	cleanup func()
}

// loadConfig reads the environment and applies the persistent flags
func loadConfig() (*config.Config, error) {
	cfg := config.FromEnv()
	if catalogF != "" {
		cfg.CatalogPath = catalogF
	}
	if len(backends) > 0 {
		cfg.SecretBackends = backends
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildRuntime wires config, catalog, secret chain, refresher and
// authenticator together
func buildRuntime(ctx context.Context, logger *logging.Logger) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, v := range []string{cfg.Supabase.AnonKey, cfg.Supabase.ServiceKey, cfg.Supabase.JWTSecret, cfg.Vault.Token} {
		logger.AddSecret(v)
	}

	catalog, err := gateway.OpenCatalogStore(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	chain, cleanup, err := secrets.BuildChain(ctx, cfg, catalog.Catalog().EnvVars(), logger)
	if err != nil {
		return nil, err
	}

	refresher := refresh.New(refresh.Config{
		Lead:       cfg.RefreshLead,
		Endpoints:  catalog.Catalog().Endpoints(),
		Store:      chain,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Logger:     logger,
	})

	bearer, err := bearerValidator(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	auth := &identity.Authenticator{
		Bearer:    bearer,
		APIKey:    identity.NewLangSmithValidator(cfg.LangSmithAPIURL, &http.Client{Timeout: 10 * time.Second}),
		Resolver:  chain,
		Refresher: refresher,
		Services:  catalog.Names,
		Logger:    logger,
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		chain:   chain,
		auth:    auth,
		factory: &gateway.Factory{
			Catalog: catalog,
			Version: version,
			Logger:  logger,
			Timeout: cfg.RequestTimeout,
		},
		cleanup: cleanup,
	}, nil
}

// bearerValidator picks the bearer token validators the config enables:
// local JWT verification, the Supabase user endpoint and an OIDC issuer
func bearerValidator(ctx context.Context, cfg *config.Config, logger *logging.Logger) (identity.Validator, error) {
	var validators []identity.Validator

	if cfg.Supabase.JWTSecret != "" {
		validators = append(validators, identity.NewJWTValidator(cfg.Supabase.JWTSecret, "authenticated"))
	} else if cfg.Supabase.URL != "" {
		validators = append(validators, identity.NewSupabaseValidator(supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey)))
	}

	if cfg.OIDC.IssuerURL != "" {
		v, err := identity.NewOIDCValidator(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID)
		if err != nil {
			return nil, err
		}
		validators = append(validators, v)
	}

	if len(validators) == 0 {
		logger.Warning("No bearer token validator configured, only x-api-key credentials will be accepted")
		return nil, nil
	}
	return identity.FirstOf(validators...), nil
}

// watchCatalog reloads the catalog whenever its file changes
func (rt *runtime) watchCatalog(ctx context.Context) {
	path := rt.catalog.Path()
	if path == "" {
		return
	}
	go func() {
		err := config.WatchFile(ctx, path, rt.logger, func() {
			if err := rt.catalog.Reload(); err != nil {
				rt.logger.Error("Failed to reload catalog %s: %v", path, err)
				return
			}
			rt.logger.Info("Reloaded service catalog: %v", rt.catalog.Names())
		})
		if err != nil {
			rt.logger.Error("Catalog watcher stopped: %v", err)
		}
	}()
}
