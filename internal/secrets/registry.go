package secrets

import (
	"context"
	"fmt"

	"github.com/giantswarm/mcp-authgate/internal/config"
	"github.com/giantswarm/mcp-authgate/internal/logging"
)

// BuildChain constructs the backends named in cfg.SecretBackends, in that
// order. Backends missing their configuration are skipped with a log line.
// The returned cleanup closes any opened connections.
func BuildChain(ctx context.Context, cfg *config.Config, envVars map[string]string, logger *logging.Logger) (*Chain, func(), error) {
	var (
		backends []Backend
		closers  []func() error
	)
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	for _, name := range cfg.SecretBackends {
		switch name {
		case config.BackendPostgresVault:
			if cfg.Supabase.DBURL == "" {
				logger.Debug("SUPABASE_DB_URL not set, skipping %s", name)
				continue
			}
			pg, err := OpenPostgresVault(cfg.Supabase.DBURL)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			closers = append(closers, pg.Close)
			backends = append(backends, pg)

		case config.BackendHashiCorpVault:
			if cfg.Vault.Addr == "" {
				logger.Debug("VAULT_ADDR not set, skipping %s", name)
				continue
			}
			hv, err := NewHashiCorpVaultBackend(HashiCorpVaultConfig{
				Address: cfg.Vault.Addr,
				Token:   cfg.Vault.Token,
				Mount:   cfg.Vault.Mount,
			})
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			backends = append(backends, hv)

		case config.BackendAWS:
			aws, err := NewAWSSecretsManagerBackend(ctx, cfg.AWSRegion)
			if err != nil {
				logger.Warning("AWS secrets backend disabled: %v", err)
				continue
			}
			backends = append(backends, aws)

		case config.BackendKeyring:
			backends = append(backends, NewKeyringBackend())

		case config.BackendEnv:
			backends = append(backends, NewEnvBackend(envVars, logger))

		default:
			cleanup()
			return nil, nil, fmt.Errorf("unknown secret backend %q", name)
		}
	}

	chain := NewChain(logger, backends...)
	logger.Info("Secret resolver chain: %v", chain.Backends())
	return chain, cleanup, nil
}
