package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// VaultFunctionsSQL installs the SECURITY DEFINER helpers the backend calls.
// They wrap the supabase_vault extension so the gateway's role never reads
// vault.decrypted_secrets directly.
const VaultFunctionsSQL = `
CREATE EXTENSION IF NOT EXISTS supabase_vault WITH SCHEMA vault;

CREATE OR REPLACE FUNCTION vault_create_secret(secret text, name text default null, description text default null)
RETURNS uuid AS $$
BEGIN
  RETURN vault.create_secret(secret, name, description);
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

CREATE OR REPLACE FUNCTION vault_read_secret(secret_name text)
RETURNS text AS $$
DECLARE
  result text;
BEGIN
  SELECT decrypted_secret INTO result
  FROM vault.decrypted_secrets
  WHERE name = secret_name;
  RETURN result;
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

CREATE OR REPLACE FUNCTION vault_delete_secret(secret_name text)
RETURNS void AS $$
BEGIN
  DELETE FROM vault.secrets WHERE name = secret_name;
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;
`

// PostgresVaultBackend reads per-user secrets from Supabase Vault through
// SQL helper functions. Secret names are "<service>_pat_<userID>".
type PostgresVaultBackend struct {
	db *sql.DB
}

// OpenPostgresVault opens a pgx-backed pool for dsn
func OpenPostgresVault(dsn string) (*PostgresVaultBackend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	return NewPostgresVaultBackend(db), nil
}

// NewPostgresVaultBackend wraps an existing pool
func NewPostgresVaultBackend(db *sql.DB) *PostgresVaultBackend {
	return &PostgresVaultBackend{db: db}
}

// SecretName returns the vault secret name for (userID, service)
func SecretName(userID, service string) string {
	return service + "_pat_" + userID
}

func (p *PostgresVaultBackend) Name() string { return "pgvault" }

func (p *PostgresVaultBackend) Available() bool { return p != nil && p.db != nil }

// Ping verifies the database is reachable
func (p *PostgresVaultBackend) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the pool
func (p *PostgresVaultBackend) Close() error { return p.db.Close() }

// Install creates the vault helper functions
func (p *PostgresVaultBackend) Install(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, VaultFunctionsSQL); err != nil {
		return fmt.Errorf("failed to install vault functions: %w", err)
	}
	return nil
}

func (p *PostgresVaultBackend) Get(ctx context.Context, userID, service string) (string, error) {
	var value sql.NullString
	err := p.db.QueryRowContext(ctx, `select vault_read_secret($1)`, SecretName(userID, service)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("vault_read_secret: %w", err)
	}
	if !value.Valid || value.String == "" {
		return "", ErrSecretNotFound
	}
	return value.String, nil
}

func (p *PostgresVaultBackend) Set(ctx context.Context, userID, service, value string) error {
	name := SecretName(userID, service)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select vault_delete_secret($1)`, name); err != nil {
		return fmt.Errorf("vault_delete_secret: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `select vault_create_secret($1, $2, $3)`,
		value, name, fmt.Sprintf("%s token for user %s", service, userID)); err != nil {
		return fmt.Errorf("vault_create_secret: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresVaultBackend) Delete(ctx context.Context, userID, service string) error {
	if _, err := p.Get(ctx, userID, service); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `select vault_delete_secret($1)`, SecretName(userID, service)); err != nil {
		return fmt.Errorf("vault_delete_secret: %w", err)
	}
	return nil
}
